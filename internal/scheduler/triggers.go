package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"alrt/internal/config"
	"alrt/internal/types"
)

// AccountLister lists every account that is currently being tracked.
type AccountLister interface {
	ListTracked(ctx context.Context) ([]*types.TrackedAccount, error)
}

// TaskEnqueuer is the enqueue surface the triggers feed. Satisfied by
// *Scheduler.
type TaskEnqueuer interface {
	EnqueueProfileRefresh(ctx context.Context, account *types.TrackedAccount) error
	EnqueueAdsCheck(ctx context.Context, account *types.TrackedAccount) error
	EnqueueStoriesRefresh(ctx context.Context, account *types.TrackedAccount) error
}

// AnalyticsRunner computes and persists one account's daily analytics.
// Satisfied by the analytics aggregator.
type AnalyticsRunner interface {
	ProcessAccount(ctx context.Context, account *types.TrackedAccount) error
}

// InactivityChecker evaluates story inactivity across all tracked accounts
// and raises alerts. Satisfied by the analytics inactivity monitor.
type InactivityChecker interface {
	Run(ctx context.Context) error
}

// Triggers runs the four periodic jobs: the interval-based profile and
// stories refreshes, and the fixed-hour analytics and inactivity runs.
//
// Interval jobs fire once at startup and then on their interval, so a
// restart rebuilds the in-memory queue backlog instead of waiting out a full
// period. Fixed-hour jobs wait for their next UTC occurrence.
type Triggers struct {
	cfg config.SchedulerConfig

	accounts   AccountLister
	enqueuer   TaskEnqueuer
	analytics  AnalyticsRunner
	inactivity InactivityChecker

	clock  types.Clock
	logger *slog.Logger

	wg sync.WaitGroup
}

// TriggersConfig holds the collaborators for creating Triggers.
type TriggersConfig struct {
	Config     config.SchedulerConfig
	Accounts   AccountLister
	Enqueuer   TaskEnqueuer
	Analytics  AnalyticsRunner
	Inactivity InactivityChecker
	Clock      types.Clock
	Logger     *slog.Logger
}

// NewTriggers creates the periodic trigger set.
func NewTriggers(cfg TriggersConfig) *Triggers {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Triggers{
		cfg:        cfg.Config,
		accounts:   cfg.Accounts,
		enqueuer:   cfg.Enqueuer,
		analytics:  cfg.Analytics,
		inactivity: cfg.Inactivity,
		clock:      clock,
		logger:     logger,
	}
}

// Start launches the trigger loops. They run until ctx is cancelled.
func (t *Triggers) Start(ctx context.Context) {
	t.startInterval(ctx, "refresh_all", t.cfg.RefreshInterval, t.refreshAll)
	t.startInterval(ctx, "refresh_stories", t.cfg.StoriesInterval, t.refreshStories)
	t.startDaily(ctx, "daily_analytics", t.cfg.AnalyticsHourUTC, t.runAnalytics)
	t.startDaily(ctx, "daily_inactivity_check", t.cfg.InactivityHourUTC, t.runInactivityCheck)
}

// Wait blocks until all trigger loops have exited.
func (t *Triggers) Wait() {
	t.wg.Wait()
}

// startInterval runs job immediately, then every interval.
func (t *Triggers) startInterval(ctx context.Context, name string, interval time.Duration, job func(ctx context.Context)) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		logger := t.logger.With("trigger", name)
		logger.InfoContext(ctx, "trigger started", "interval", interval.String())

		job(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				job(ctx)
			case <-ctx.Done():
				logger.InfoContext(ctx, "trigger stopped")
				return
			}
		}
	}()
}

// startDaily runs job once per day at the given UTC hour.
func (t *Triggers) startDaily(ctx context.Context, name string, hourUTC int, job func(ctx context.Context)) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		logger := t.logger.With("trigger", name)
		logger.InfoContext(ctx, "trigger started", "hour_utc", hourUTC)

		for {
			wait := untilNextHour(t.clock.Now(), hourUTC)
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
				job(ctx)
			case <-ctx.Done():
				timer.Stop()
				logger.InfoContext(ctx, "trigger stopped")
				return
			}
		}
	}()
}

// untilNextHour returns the duration from now until the next occurrence of
// the given UTC hour, strictly in the future.
func untilNextHour(now time.Time, hourUTC int) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// refreshAll enqueues a profile refresh for every tracked account, and an
// ads-library check for each one with a linked Facebook page. Backpressure
// is logged and skipped; the next cycle picks the account up again.
func (t *Triggers) refreshAll(ctx context.Context) {
	accounts, err := t.accounts.ListTracked(ctx)
	if err != nil {
		t.logger.ErrorContext(ctx, "refresh_all: failed to list accounts", "error", err)
		return
	}

	enqueued := 0
	for _, account := range accounts {
		if err := t.enqueuer.EnqueueProfileRefresh(ctx, account); err != nil {
			t.logger.WarnContext(ctx, "refresh_all: enqueue failed",
				"account_id", account.ID, "error", err)
			continue
		}
		enqueued++

		if account.FacebookPageURL == "" {
			continue
		}
		if err := t.enqueuer.EnqueueAdsCheck(ctx, account); err != nil {
			t.logger.WarnContext(ctx, "refresh_all: ads enqueue failed",
				"account_id", account.ID, "error", err)
		}
	}

	t.logger.InfoContext(ctx, "refresh_all cycle complete",
		"accounts", len(accounts), "enqueued", enqueued)
}

// refreshStories enqueues a stories refresh for every tracked account.
func (t *Triggers) refreshStories(ctx context.Context) {
	accounts, err := t.accounts.ListTracked(ctx)
	if err != nil {
		t.logger.ErrorContext(ctx, "refresh_stories: failed to list accounts", "error", err)
		return
	}

	enqueued := 0
	for _, account := range accounts {
		if err := t.enqueuer.EnqueueStoriesRefresh(ctx, account); err != nil {
			t.logger.WarnContext(ctx, "refresh_stories: enqueue failed",
				"account_id", account.ID, "error", err)
			continue
		}
		enqueued++
	}

	t.logger.InfoContext(ctx, "refresh_stories cycle complete",
		"accounts", len(accounts), "enqueued", enqueued)
}

// runAnalytics processes every tracked account serially with a pacing gap
// between accounts. Analytics bypasses the task queues entirely; one slow
// provider response delays the remaining accounts rather than a worker.
func (t *Triggers) runAnalytics(ctx context.Context) {
	accounts, err := t.accounts.ListTracked(ctx)
	if err != nil {
		t.logger.ErrorContext(ctx, "daily_analytics: failed to list accounts", "error", err)
		return
	}

	processed := 0
	for i, account := range accounts {
		if i > 0 && !sleepCtx(ctx, t.cfg.AnalyticsAccountGap) {
			break
		}
		if err := t.analytics.ProcessAccount(ctx, account); err != nil {
			t.logger.WarnContext(ctx, "daily_analytics: account failed",
				"account_id", account.ID, "handle", account.Handle, "error", err)
			continue
		}
		processed++
	}

	t.logger.InfoContext(ctx, "daily_analytics cycle complete",
		"accounts", len(accounts), "processed", processed)
}

// runInactivityCheck delegates to the inactivity monitor.
func (t *Triggers) runInactivityCheck(ctx context.Context) {
	if err := t.inactivity.Run(ctx); err != nil {
		t.logger.ErrorContext(ctx, "daily_inactivity_check failed", "error", err)
		return
	}
	t.logger.InfoContext(ctx, "daily_inactivity_check complete")
}
