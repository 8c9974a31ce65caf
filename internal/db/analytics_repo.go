package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"alrt/internal/types"
)

// AnalyticsRepository provides data access for analytics snapshots and the
// activity calendar. Both tables are keyed (account, day); snapshots
// overwrite on conflict while calendar entries accumulate.
type AnalyticsRepository struct {
	db DBTX
}

// NewAnalyticsRepository creates a new AnalyticsRepository.
func NewAnalyticsRepository(db DBTX) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// UpsertSnapshot writes the daily rollup for an account. Re-running the
// aggregator on the same day replaces the earlier values, preserving the
// at-most-one-snapshot-per-account-per-day invariant.
func (r *AnalyticsRepository) UpsertSnapshot(ctx context.Context, s *types.AnalyticsSnapshot) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO analytics_snapshots (id, account_id, day, followers_count,
			following_count, posts_count, avg_likes, avg_comments,
			engagement_rate, posts_per_day)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (account_id, day) DO UPDATE SET
			followers_count = EXCLUDED.followers_count,
			following_count = EXCLUDED.following_count,
			posts_count     = EXCLUDED.posts_count,
			avg_likes       = EXCLUDED.avg_likes,
			avg_comments    = EXCLUDED.avg_comments,
			engagement_rate = EXCLUDED.engagement_rate,
			posts_per_day   = EXCLUDED.posts_per_day`,
		s.ID, s.AccountID, s.Day, s.FollowersCount, s.FollowingCount,
		s.PostsCount, s.AvgLikes, s.AvgComments, s.EngagementRate, s.PostsPerDay)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert snapshot", err)
	}
	return nil
}

// ListSnapshots returns up to limit daily snapshots for an account, newest
// first.
func (r *AnalyticsRepository) ListSnapshots(ctx context.Context, accountID string, limit int) ([]*types.AnalyticsSnapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, account_id, day, followers_count, following_count,
			posts_count, avg_likes, avg_comments, engagement_rate,
			posts_per_day, created_at
		FROM analytics_snapshots
		WHERE account_id = $1
		ORDER BY day DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list snapshots", err)
	}
	defer rows.Close()

	var snaps []*types.AnalyticsSnapshot
	for rows.Next() {
		var s types.AnalyticsSnapshot
		if err := rows.Scan(&s.ID, &s.AccountID, &s.Day, &s.FollowersCount,
			&s.FollowingCount, &s.PostsCount, &s.AvgLikes, &s.AvgComments,
			&s.EngagementRate, &s.PostsPerDay, &s.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan snapshot", err)
		}
		snaps = append(snaps, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate snapshots", err)
	}
	return snaps, nil
}

// MarkActivity additively upserts the activity calendar for one account/day.
// Counts increment rather than overwrite so concurrent workers marking the
// same day never lose sightings.
func (r *AnalyticsRepository) MarkActivity(ctx context.Context, accountID string, day time.Time, stories, posts int) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO activity_calendar (account_id, day, has_story, has_post, story_count, post_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id, day) DO UPDATE SET
			has_story   = activity_calendar.has_story OR EXCLUDED.has_story,
			has_post    = activity_calendar.has_post OR EXCLUDED.has_post,
			story_count = activity_calendar.story_count + EXCLUDED.story_count,
			post_count  = activity_calendar.post_count + EXCLUDED.post_count`,
		accountID, day, stories > 0, posts > 0, stories, posts)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark activity", err)
	}
	return nil
}

// ListCalendar returns the activity calendar entries for an account within
// [from, to], oldest first.
func (r *AnalyticsRepository) ListCalendar(ctx context.Context, accountID string, from, to time.Time) ([]*types.ActivityCalendarEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT account_id, day, has_story, has_post, story_count, post_count
		FROM activity_calendar
		WHERE account_id = $1 AND day BETWEEN $2 AND $3
		ORDER BY day`, accountID, from, to)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list calendar", err)
	}
	defer rows.Close()

	var entries []*types.ActivityCalendarEntry
	for rows.Next() {
		var e types.ActivityCalendarEntry
		if err := rows.Scan(&e.AccountID, &e.Day, &e.HasStory, &e.HasPost,
			&e.StoryCount, &e.PostCount); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan calendar entry", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate calendar", err)
	}
	return entries, nil
}
