package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"alrt/internal/types"
)

// AccountRepository provides data access for the tracked_accounts table.
// Concurrent updates from workers are last-write-wins; every UPDATE here
// touches only the columns its caller owns, so racing workers of different
// kinds (profile vs stories vs ads) never clobber each other's fields.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository creates a new AccountRepository backed by the given
// database connection (pool or transaction).
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// accountColumns is the standard set of columns selected for account queries.
const accountColumns = `a.id, a.user_id, a.handle, a.tracked,
	a.custom_label, a.notes, a.lead_status,
	a.facebook_page_url, a.ads_status, a.ads_count,
	a.check_status, a.last_check_at, a.last_error_message,
	a.status_signal, a.last_post_date, a.last_post_url,
	a.days_inactive, a.followers_count, a.avg_posting_interval,
	a.last_story_date, a.stories_inactive_days,
	a.total_stories_archived, a.total_posts_tracked,
	a.tracking_started_at, a.created_at`

// scanAccount scans a single account row. The columns must match the order
// defined in accountColumns.
func scanAccount(row pgx.Row) (*types.TrackedAccount, error) {
	var a types.TrackedAccount
	var (
		customLabel     *string
		notes           *string
		facebookPageURL *string
		lastErrorMsg    *string
		lastPostURL     *string
	)

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Handle,
		&a.Tracked,
		&customLabel,
		&notes,
		&a.LeadStatus,
		&facebookPageURL,
		&a.AdsStatus,
		&a.AdsCount,
		&a.CheckStatus,
		&a.LastCheckAt,
		&lastErrorMsg,
		&a.StatusSignal,
		&a.LastPostDate,
		&lastPostURL,
		&a.DaysInactive,
		&a.FollowersCount,
		&a.AvgPostingInterval,
		&a.LastStoryDate,
		&a.StoriesInactiveDays,
		&a.TotalStoriesArchived,
		&a.TotalPostsTracked,
		&a.TrackingStartedAt,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if customLabel != nil {
		a.CustomLabel = *customLabel
	}
	if notes != nil {
		a.Notes = *notes
	}
	if facebookPageURL != nil {
		a.FacebookPageURL = *facebookPageURL
	}
	if lastErrorMsg != nil {
		a.LastErrorMessage = *lastErrorMsg
	}
	if lastPostURL != nil {
		a.LastPostURL = *lastPostURL
	}

	return &a, nil
}

// Create inserts a new tracked account for a user. A duplicate (user, handle)
// pair maps to ErrCodeConflictTracked.
func (r *AccountRepository) Create(ctx context.Context, userID, handle string) (*types.TrackedAccount, error) {
	id := uuid.New().String()

	row := r.db.QueryRow(ctx, `
		INSERT INTO tracked_accounts (id, user_id, handle)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, handle) DO NOTHING
		RETURNING id`,
		id, userID, handle,
	)

	var inserted string
	if err := row.Scan(&inserted); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeConflictTracked,
				fmt.Sprintf("@%s is already tracked", handle), nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create tracked account", err)
	}

	return r.GetByID(ctx, id)
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*types.TrackedAccount, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM tracked_accounts a WHERE a.id = $1`, id)

	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load account", err)
	}
	return a, nil
}

// GetByIDForUser retrieves an account by ID, scoped to its owner.
func (r *AccountRepository) GetByIDForUser(ctx context.Context, id, userID string) (*types.TrackedAccount, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM tracked_accounts a WHERE a.id = $1 AND a.user_id = $2`,
		id, userID)

	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load account", err)
	}
	return a, nil
}

// ListByUser returns all tracked accounts owned by a user, newest first.
func (r *AccountRepository) ListByUser(ctx context.Context, userID string) ([]*types.TrackedAccount, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+accountColumns+` FROM tracked_accounts a
		 WHERE a.user_id = $1 AND a.tracked
		 ORDER BY a.created_at DESC`, userID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list accounts", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// ListTracked returns every tracking-enabled account across all users. Used
// by the periodic triggers to fan out refresh work.
func (r *AccountRepository) ListTracked(ctx context.Context) ([]*types.TrackedAccount, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+accountColumns+` FROM tracked_accounts a
		 WHERE a.tracked
		 ORDER BY a.created_at`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list tracked accounts", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

func collectAccounts(rows pgx.Rows) ([]*types.TrackedAccount, error) {
	var accounts []*types.TrackedAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan account", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate accounts", err)
	}
	return accounts, nil
}

// CountByUser returns how many accounts a user currently tracks. Used to
// enforce plan limits before adding another.
func (r *AccountRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM tracked_accounts WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count accounts", err)
	}
	return count, nil
}

// Delete removes an account (and, via cascade, its archives, snapshots,
// calendar entries, and alerts). Scoped to the owner.
func (r *AccountRepository) Delete(ctx context.Context, id, userID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM tracked_accounts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete account", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
	}
	return nil
}

// MetadataUpdate carries the optional CRM fields of a PATCH; nil pointers are
// left untouched.
type MetadataUpdate struct {
	CustomLabel     *string
	Notes           *string
	LeadStatus      *types.LeadStatus
	FacebookPageURL *string
}

// UpdateMetadata applies a partial CRM update, scoped to the owner.
func (r *AccountRepository) UpdateMetadata(ctx context.Context, id, userID string, upd MetadataUpdate) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE tracked_accounts SET
			custom_label      = COALESCE($3, custom_label),
			notes             = COALESCE($4, notes),
			lead_status       = COALESCE($5, lead_status),
			facebook_page_url = COALESCE($6, facebook_page_url)
		WHERE id = $1 AND user_id = $2`,
		id, userID, upd.CustomLabel, upd.Notes, upd.LeadStatus, upd.FacebookPageURL)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update metadata", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
	}
	return nil
}

// SetCheckStatus transitions the account's check lifecycle state
// (queued, processing). Terminal states go through RecordCheckSuccess or
// RecordCheckFailure instead.
func (r *AccountRepository) SetCheckStatus(ctx context.Context, id string, status types.CheckStatus) error {
	_, err := r.db.Exec(ctx,
		`UPDATE tracked_accounts SET check_status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set check status", err)
	}
	return nil
}

// RecordCheckSuccess persists the derived profile metrics and clears any
// previous error message.
func (r *AccountRepository) RecordCheckSuccess(ctx context.Context, id string, m types.ProfileMetrics, now time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE tracked_accounts SET
			check_status         = 'success',
			last_check_at        = $2,
			last_error_message   = NULL,
			status_signal        = $3,
			last_post_date       = $4,
			last_post_url        = $5,
			days_inactive        = $6,
			followers_count      = $7,
			avg_posting_interval = $8
		WHERE id = $1`,
		id, now, m.StatusSignal, m.LastPostDate, m.LastPostURL,
		m.DaysInactive, m.FollowersCount, m.AvgPostingInterval)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record check success", err)
	}
	return nil
}

// RecordCheckFailure marks the check failed and stores the failure message
// for the dashboard.
func (r *AccountRepository) RecordCheckFailure(ctx context.Context, id, message string, now time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE tracked_accounts SET
			check_status       = 'failed',
			last_check_at      = $2,
			last_error_message = $3
		WHERE id = $1`,
		id, now, message)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record check failure", err)
	}
	return nil
}

// SetAdsStatus transitions the ads-library check state (e.g. CHECKING).
func (r *AccountRepository) SetAdsStatus(ctx context.Context, id string, status types.AdsStatus) error {
	_, err := r.db.Exec(ctx,
		`UPDATE tracked_accounts SET ads_status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set ads status", err)
	}
	return nil
}

// RecordAdsResult stores the outcome of an ads-library check.
func (r *AccountRepository) RecordAdsResult(ctx context.Context, id string, res types.AdsResult) error {
	_, err := r.db.Exec(ctx,
		`UPDATE tracked_accounts SET ads_status = $2, ads_count = $3 WHERE id = $1`,
		id, res.Status, res.Count)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record ads result", err)
	}
	return nil
}

// RecordStoriesResult updates the stories counters after a stories refresh.
// The lifetime counter increments by newCount (which may be zero); when at
// least one new story was archived, the inactivity counter resets and the
// last story date advances.
func (r *AccountRepository) RecordStoriesResult(ctx context.Context, id string, newCount int, lastStoryDate *time.Time) error {
	if newCount > 0 && lastStoryDate != nil {
		_, err := r.db.Exec(ctx, `
			UPDATE tracked_accounts SET
				total_stories_archived = total_stories_archived + $2,
				stories_inactive_days  = 0,
				last_story_date        = GREATEST(COALESCE(last_story_date, $3), $3)
			WHERE id = $1`,
			id, newCount, *lastStoryDate)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to record stories result", err)
		}
		return nil
	}

	_, err := r.db.Exec(ctx, `
		UPDATE tracked_accounts SET
			total_stories_archived = total_stories_archived + $2
		WHERE id = $1`,
		id, newCount)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record stories result", err)
	}
	return nil
}

// UpdateStoriesInactiveDays persists the computed whole-day story inactivity.
func (r *AccountRepository) UpdateStoriesInactiveDays(ctx context.Context, id string, days int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE tracked_accounts SET stories_inactive_days = $2 WHERE id = $1`, id, days)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update stories inactivity", err)
	}
	return nil
}

// IncrementPostsTracked bumps the lifetime posts counter by the number of
// newly archived posts.
func (r *AccountRepository) IncrementPostsTracked(ctx context.Context, id string, n int) error {
	if n == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`UPDATE tracked_accounts SET total_posts_tracked = total_posts_tracked + $2 WHERE id = $1`,
		id, n)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to increment posts counter", err)
	}
	return nil
}
