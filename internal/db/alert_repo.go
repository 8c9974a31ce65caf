package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"alrt/internal/types"
)

// AlertRepository provides data access for inactivity alerts. The
// (account, day) unique constraint enforces at most one alert per account per
// calendar day even if two monitor cycles race.
type AlertRepository struct {
	db DBTX
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

// InsertIfAbsent raises an alert unless one already exists for this account
// and day. Returns true when a row was actually inserted.
func (r *AlertRepository) InsertIfAbsent(ctx context.Context, a *types.InactivityAlert, day time.Time) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO inactivity_alerts (id, account_id, user_id, days_inactive, day)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, day) DO NOTHING`,
		a.ID, a.AccountID, a.UserID, a.DaysInactive, day)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to insert alert", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListByUser returns a user's alerts, newest first. Dismissed alerts are
// excluded unless includeDismissed is set.
func (r *AlertRepository) ListByUser(ctx context.Context, userID string, includeDismissed bool) ([]*types.InactivityAlert, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, account_id, user_id, days_inactive, is_read, is_dismissed, created_at
		FROM inactivity_alerts
		WHERE user_id = $1 AND (is_dismissed = FALSE OR $2)
		ORDER BY created_at DESC`, userID, includeDismissed)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list alerts", err)
	}
	defer rows.Close()

	var alerts []*types.InactivityAlert
	for rows.Next() {
		var a types.InactivityAlert
		if err := rows.Scan(&a.ID, &a.AccountID, &a.UserID, &a.DaysInactive,
			&a.IsRead, &a.IsDismissed, &a.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert", err)
		}
		alerts = append(alerts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate alerts", err)
	}
	return alerts, nil
}

// MarkRead flags an alert as read, scoped to the owner.
func (r *AlertRepository) MarkRead(ctx context.Context, id, userID string) error {
	return r.setFlag(ctx, id, userID, `is_read = TRUE`)
}

// Dismiss flags an alert as dismissed, scoped to the owner.
func (r *AlertRepository) Dismiss(ctx context.Context, id, userID string) error {
	return r.setFlag(ctx, id, userID, `is_dismissed = TRUE`)
}

func (r *AlertRepository) setFlag(ctx context.Context, id, userID, set string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE inactivity_alerts SET `+set+` WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update alert", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAlert, "alert not found", nil)
	}
	return nil
}
