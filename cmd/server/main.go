// Package main is the entry point for the alrt server.
//
// It loads configuration, connects to Postgres and applies the schema, wires
// the Apify data source behind the retry discipline, builds the scheduler
// (queues, worker pools, periodic triggers), and serves the HTTP API.
// Everything runs in one process; graceful shutdown is handled via OS signal
// interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"alrt/internal/analytics"
	"alrt/internal/api"
	"alrt/internal/auth"
	"alrt/internal/config"
	"alrt/internal/db"
	"alrt/internal/media"
	"alrt/internal/metrics"
	"alrt/internal/scheduler"
	"alrt/internal/scrape"
	"alrt/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// compositeStore bundles the repositories behind the store interfaces the
// workers and the analytics aggregator consume. The method sets are
// disjoint, so plain embedding is enough.
type compositeStore struct {
	*db.AccountRepository
	*db.ArchiveRepository
	*db.AnalyticsRepository
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on
// error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("alrt server starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database.
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

	accountRepo := db.NewAccountRepository(pool)
	userRepo := db.NewUserRepository(pool)
	archiveRepo := db.NewArchiveRepository(pool)
	analyticsRepo := db.NewAnalyticsRepository(pool)
	alertRepo := db.NewAlertRepository(pool)
	store := &compositeStore{accountRepo, archiveRepo, analyticsRepo}

	clock := types.RealClock{}

	// External data source and retry discipline.
	source := scrape.NewApifyDataSource(cfg.Scrape, &http.Client{}, clock)
	retrier := scrape.NewRetrier(scrape.RetryPolicy{
		Attempts: cfg.Scrape.MaxRetries,
		Timeout:  cfg.Scrape.FetchTimeout,
		Backoff:  cfg.Scrape.RetryBackoff,
	})

	// Metrics.
	collector, err := metrics.NewCollector()
	if err != nil {
		return fmt.Errorf("creating metrics collector: %w", err)
	}

	// Thumbnail mirroring, disabled when no bucket is configured.
	mirror, err := newMirror(ctx, cfg.Media, logger)
	if err != nil {
		return fmt.Errorf("creating thumbnail mirror: %w", err)
	}

	// Scheduler: queues, worker pools, and periodic triggers.
	sched := scheduler.New(scheduler.SchedulerConfig{
		Config:   cfg.Scheduler,
		Accounts: accountRepo,
		ProfileHandler: scheduler.NewProfileHandler(
			accountRepo, source, retrier, clock, logger),
		AdsHandler: scheduler.NewAdsHandler(
			accountRepo, source, retrier, logger),
		StoriesHandler: scheduler.NewStoriesHandler(
			store, source, retrier, mirror, clock, logger),
		Metrics: collector,
		Logger:  logger,
	})

	aggregator := analytics.NewAggregator(analytics.AggregatorConfig{
		Store:       store,
		Source:      source,
		Retrier:     retrier,
		PostsWindow: cfg.Scheduler.AnalyticsPostsWindow,
		Clock:       clock,
		Logger:      logger,
	})
	monitor := analytics.NewInactivityMonitor(accountRepo, alertRepo, clock, logger)

	sched.AttachTriggers(scheduler.NewTriggers(scheduler.TriggersConfig{
		Config:     cfg.Scheduler,
		Accounts:   accountRepo,
		Enqueuer:   sched,
		Analytics:  aggregator,
		Inactivity: monitor,
		Clock:      clock,
		Logger:     logger,
	}))

	// Auth and HTTP API.
	authService := auth.NewService(auth.ServiceConfig{
		Users:  userRepo,
		Tokens: auth.NewTokenIssuer(cfg.Auth, clock),
		Logger: logger,
	})

	apiServer := api.NewServer(api.ServerConfig{
		Plans:     cfg.Plans,
		Auth:      authService,
		Accounts:  accountRepo,
		Alerts:    alertRepo,
		Analytics: analyticsRepo,
		Scheduler: sched,
		Metrics:   collector,
		Health:    pool,
		Clock:     clock,
		Logger:    logger,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sched.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Error("scheduler shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("alrt server stopped")
	return nil
}

// newMirror builds the S3-backed thumbnail mirror. A nil *media.S3Mirror
// (no bucket configured) must stay a nil interface so the stories handler's
// mirror check works; hence the explicit indirection.
func newMirror(ctx context.Context, cfg config.MediaConfig, logger *slog.Logger) (scheduler.ThumbnailMirror, error) {
	if cfg.Bucket == "" {
		logger.Info("thumbnail mirroring disabled, no bucket configured")
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = &cfg.EndpointURL
			o.UsePathStyle = true
		}
	})

	m := media.NewS3Mirror(cfg, client, nil, logger)
	if m == nil {
		return nil, nil
	}
	return m, nil
}

// newLogger creates a structured slog.Logger for the configured level and
// output format.
func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
