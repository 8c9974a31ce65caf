package analytics

import (
	"context"
	"log/slog"
	"time"

	"alrt/internal/types"
)

// AlertThresholdDays is the story silence, in whole days, at which an
// inactivity alert is raised.
const AlertThresholdDays = 3

// AccountSource lists the accounts the monitor evaluates.
type AccountSource interface {
	ListTracked(ctx context.Context) ([]*types.TrackedAccount, error)
	UpdateStoriesInactiveDays(ctx context.Context, id string, days int) error
}

// AlertSink persists alerts. InsertIfAbsent reports whether a new row was
// created; a false return means today's alert for that account already
// exists.
type AlertSink interface {
	InsertIfAbsent(ctx context.Context, a *types.InactivityAlert, day time.Time) (bool, error)
}

// InactivityMonitor recomputes every account's story silence and raises at
// most one alert per account per calendar day. Running it twice in a day is
// safe; the second run finds the alerts already present.
type InactivityMonitor struct {
	accounts AccountSource
	alerts   AlertSink
	clock    types.Clock
	logger   *slog.Logger
}

// NewInactivityMonitor creates an InactivityMonitor.
func NewInactivityMonitor(accounts AccountSource, alerts AlertSink, clock types.Clock, logger *slog.Logger) *InactivityMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &InactivityMonitor{accounts: accounts, alerts: alerts, clock: clock, logger: logger}
}

// Run evaluates all tracked accounts. Per-account failures are logged and
// skipped so one bad row cannot block alerts for the rest.
func (m *InactivityMonitor) Run(ctx context.Context) error {
	accounts, err := m.accounts.ListTracked(ctx)
	if err != nil {
		return err
	}

	now := m.clock.Now()
	today := dayOf(now)
	raised := 0

	for _, account := range accounts {
		// Accounts with no archived story yet have no silence to measure;
		// they enter the monitor once their first story lands.
		if account.LastStoryDate == nil {
			continue
		}
		days := storiesInactiveDays(account, now)
		if err := m.accounts.UpdateStoriesInactiveDays(ctx, account.ID, days); err != nil {
			m.logger.ErrorContext(ctx, "failed to update story silence",
				"account_id", account.ID, "error", err)
			continue
		}
		if days < AlertThresholdDays {
			continue
		}

		inserted, err := m.alerts.InsertIfAbsent(ctx, &types.InactivityAlert{
			AccountID:    account.ID,
			UserID:       account.UserID,
			DaysInactive: days,
		}, today)
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to insert alert",
				"account_id", account.ID, "error", err)
			continue
		}
		if inserted {
			raised++
		}
	}

	m.logger.InfoContext(ctx, "inactivity check complete",
		"accounts", len(accounts), "alerts_raised", raised)
	return nil
}

// storiesInactiveDays computes whole days since the last archived story.
func storiesInactiveDays(account *types.TrackedAccount, now time.Time) int {
	days := int(now.Sub(*account.LastStoryDate).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
