// Package types defines the shared domain model for the alrt platform:
// tracked accounts, archived posts and stories, analytics snapshots, the
// activity calendar, inactivity alerts, and the error and enum vocabulary
// used by every other package.
package types

import "time"

// User owns a set of tracked accounts. Authentication is username/password
// with bcrypt hashing; the plan tier caps how many accounts the user may track.
type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	HashedPassword string    `json:"-"`
	Plan           PlanTier  `json:"plan"`
	CreatedAt      time.Time `json:"created_at"`
}

// TrackedAccount is a social profile a user has asked the system to monitor.
// It is created by the API layer and thereafter mutated exclusively by workers
// and aggregators. Two users may track the same handle; rows are always
// addressed by ID, never by handle.
type TrackedAccount struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Handle  string `json:"handle"`
	Tracked bool   `json:"tracked"`

	// CRM metadata, owned by the API layer.
	CustomLabel string     `json:"custom_label,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	LeadStatus  LeadStatus `json:"lead_status"`

	// Facebook ads-library link.
	FacebookPageURL string    `json:"facebook_page_url,omitempty"`
	AdsStatus       AdsStatus `json:"ads_status"`
	AdsCount        int       `json:"ads_count"`

	// Most recent profile check outcome.
	CheckStatus      CheckStatus `json:"check_status"`
	LastCheckAt      *time.Time  `json:"last_check_at,omitempty"`
	LastErrorMessage string      `json:"last_error_message,omitempty"`

	// Derived posting metrics (written on successful profile refresh).
	StatusSignal       StatusSignal `json:"status_signal"`
	LastPostDate       *time.Time   `json:"last_post_date,omitempty"`
	LastPostURL        string       `json:"last_post_url,omitempty"`
	DaysInactive       int          `json:"days_inactive"`
	FollowersCount     int          `json:"followers_count"`
	AvgPostingInterval float64      `json:"avg_posting_interval"`

	// Stories activity (written by the stories worker and inactivity monitor).
	LastStoryDate       *time.Time `json:"last_story_date,omitempty"`
	StoriesInactiveDays int        `json:"stories_inactive_days"`

	// Lifetime counters.
	TotalStoriesArchived int `json:"total_stories_archived"`
	TotalPostsTracked    int `json:"total_posts_tracked"`

	TrackingStartedAt time.Time `json:"tracking_started_at"`
	CreatedAt         time.Time `json:"created_at"`
}

// Post is an archived feed post. Rows are append-only: created by workers on
// first sighting, deduplicated by the provider-native content ID, and never
// mutated or deleted afterwards.
type Post struct {
	ID              string    `json:"id"`
	AccountID       string    `json:"account_id"`
	InstagramPostID string    `json:"instagram_post_id"`
	URL             string    `json:"url,omitempty"`
	ThumbnailURL    string    `json:"thumbnail_url,omitempty"`
	Caption         string    `json:"caption,omitempty"`
	LikesCount      int       `json:"likes_count"`
	CommentsCount   int       `json:"comments_count"`
	PostedAt        time.Time `json:"posted_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// Story is an archived story. Like posts, rows are append-only and
// deduplicated by the provider-native story ID. MirroredURL points at our
// durable copy of the thumbnail; it is empty when mirroring failed, which is
// tolerated (metadata is archived regardless).
type Story struct {
	ID               string    `json:"id"`
	AccountID        string    `json:"account_id"`
	InstagramStoryID string    `json:"instagram_story_id"`
	MediaURL         string    `json:"media_url,omitempty"`
	MirroredURL      string    `json:"mirrored_url,omitempty"`
	PostedAt         time.Time `json:"posted_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// AnalyticsSnapshot is the daily engagement rollup for one account. At most
// one row exists per (account, day); reruns on the same day overwrite the
// previous values (upsert).
type AnalyticsSnapshot struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"account_id"`
	Day            time.Time `json:"day"`
	FollowersCount int       `json:"followers_count"`
	FollowingCount int       `json:"following_count"`
	PostsCount     int       `json:"posts_count"`
	AvgLikes       float64   `json:"avg_likes"`
	AvgComments    float64   `json:"avg_comments"`
	EngagementRate float64   `json:"engagement_rate"`
	PostsPerDay    float64   `json:"posts_per_day"`
	CreatedAt      time.Time `json:"created_at"`
}

// ActivityCalendarEntry records, per account and calendar day, whether any
// story or post occurred and how many of each. Upserts are additive: counts
// increment rather than overwrite, so two workers marking the same day never
// lose each other's sightings.
type ActivityCalendarEntry struct {
	AccountID  string    `json:"account_id"`
	Day        time.Time `json:"day"`
	HasStory   bool      `json:"has_story"`
	HasPost    bool      `json:"has_post"`
	StoryCount int       `json:"story_count"`
	PostCount  int       `json:"post_count"`
}

// InactivityAlert is raised when an account's stories have been silent for
// three or more days. At most one alert exists per (account, day); the
// monitor checks before inserting.
type InactivityAlert struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	UserID       string    `json:"user_id"`
	DaysInactive int       `json:"days_inactive"`
	IsRead       bool      `json:"is_read"`
	IsDismissed  bool      `json:"is_dismissed"`
	CreatedAt    time.Time `json:"created_at"`
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }
