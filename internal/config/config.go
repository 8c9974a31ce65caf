// Package config defines the global configuration structure for the alrt
// platform. Configuration is loaded once at process startup and is immutable
// thereafter. It follows 12-Factor App principles by strictly separating code
// from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup.
package config

import "time"

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json text"`

	Server    ServerConfig
	Database  DatabaseConfig
	Scrape    ScrapeConfig
	Scheduler SchedulerConfig
	Auth      AuthConfig
	Media     MediaConfig
	Plans     PlanConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"20s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// ScrapeConfig holds the external profile data provider's credentials and the
// retry/timeout discipline applied to every outbound fetch.
type ScrapeConfig struct {
	APIToken string `envconfig:"APIFY_TOKEN" validate:"required"`
	BaseURL  string `envconfig:"APIFY_BASE_URL" default:"https://api.apify.com"`

	// Actor identifiers for the provider's scraping jobs.
	ProfileActor string `envconfig:"APIFY_PROFILE_ACTOR" default:"apify~instagram-scraper"`
	AdsActor     string `envconfig:"APIFY_ADS_ACTOR" default:"curious_coder~facebook-ads-library-scraper"`

	// One attempt is bounded by FetchTimeout; a failed attempt sleeps
	// RetryBackoff before the next, up to MaxRetries attempts total.
	MaxRetries   int           `envconfig:"SCRAPE_MAX_RETRIES" default:"3" validate:"min=1"`
	FetchTimeout time.Duration `envconfig:"SCRAPE_FETCH_TIMEOUT" default:"120s"`
	RetryBackoff time.Duration `envconfig:"SCRAPE_RETRY_BACKOFF" default:"5s"`
}

// SchedulerConfig holds queue capacities, worker pool sizes, pacing delays,
// and periodic trigger intervals.
type SchedulerConfig struct {
	QueueCapacity int `envconfig:"QUEUE_CAPACITY" default:"1000" validate:"min=1"`

	ProfileWorkers int `envconfig:"PROFILE_WORKERS" default:"2" validate:"min=1"`
	AdsWorkers     int `envconfig:"ADS_WORKERS" default:"1" validate:"min=1"`
	StoriesWorkers int `envconfig:"STORIES_WORKERS" default:"2" validate:"min=1"`

	// Per-worker pause after each task, a crude rate-limit safeguard toward
	// the upstream provider. Aggregate request rate scales with worker count.
	TaskDelay time.Duration `envconfig:"TASK_DELAY" default:"5s"`

	// Pause before a worker resumes after a recovered handler panic.
	RecoveryDelay time.Duration `envconfig:"RECOVERY_DELAY" default:"10s"`

	RefreshInterval      time.Duration `envconfig:"REFRESH_INTERVAL" default:"12h"`
	StoriesInterval      time.Duration `envconfig:"STORIES_INTERVAL" default:"20h"`
	AnalyticsHourUTC     int           `envconfig:"ANALYTICS_HOUR_UTC" default:"2" validate:"min=0,max=23"`
	InactivityHourUTC    int           `envconfig:"INACTIVITY_HOUR_UTC" default:"6" validate:"min=0,max=23"`
	AnalyticsAccountGap  time.Duration `envconfig:"ANALYTICS_ACCOUNT_GAP" default:"3s"`
	AnalyticsPostsWindow int           `envconfig:"ANALYTICS_POSTS_WINDOW" default:"20" validate:"min=1"`
}

// AuthConfig holds session token secrets and lifetimes.
type AuthConfig struct {
	JWTSecret     string        `envconfig:"JWT_SECRET" validate:"required,min=32"`
	TokenLifetime time.Duration `envconfig:"TOKEN_LIFETIME" default:"24h"`
}

// MediaConfig holds object storage settings for mirrored story thumbnails.
// An empty bucket disables mirroring; story metadata is still archived.
type MediaConfig struct {
	Bucket      string        `envconfig:"MEDIA_BUCKET"`
	Region      string        `envconfig:"AWS_REGION" default:"us-east-1"`
	EndpointURL string        `envconfig:"AWS_ENDPOINT_URL"`
	FetchLimit  int64         `envconfig:"MEDIA_FETCH_LIMIT_BYTES" default:"5242880"`
	Timeout     time.Duration `envconfig:"MEDIA_FETCH_TIMEOUT" default:"30s"`
}

// PlanConfig caps the number of tracked accounts per subscription tier.
type PlanConfig struct {
	MaxAccountsBronze int `envconfig:"MAX_ACCOUNTS_BRONZE" default:"15" validate:"min=1"`
	MaxAccountsSilver int `envconfig:"MAX_ACCOUNTS_SILVER" default:"50" validate:"min=1"`
	MaxAccountsGold   int `envconfig:"MAX_ACCOUNTS_GOLD" default:"100" validate:"min=1"`
}

// MaxAccounts returns the tracked-account cap for the given tier. Unknown
// tiers fall back to the bronze cap.
func (p PlanConfig) MaxAccounts(tier string) int {
	switch tier {
	case "silver":
		return p.MaxAccountsSilver
	case "gold":
		return p.MaxAccountsGold
	default:
		return p.MaxAccountsBronze
	}
}
