// Package analytics computes the daily engagement rollups and the story
// inactivity alerts for tracked accounts. Both jobs run from the scheduler's
// fixed-hour triggers and talk to the provider directly, bypassing the task
// queues.
package analytics

import (
	"context"
	"log/slog"
	"math"
	"time"

	"alrt/internal/scrape"
	"alrt/internal/types"
)

// Retrier wraps a fetch in the retry/timeout/backoff discipline.
// Satisfied by *scrape.Retrier.
type Retrier interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// SnapshotStore persists everything one analytics run produces: archived
// posts, the daily snapshot, calendar marks, and the lifetime post counter.
type SnapshotStore interface {
	InsertPostIfNew(ctx context.Context, p *types.Post) (bool, error)
	UpsertSnapshot(ctx context.Context, s *types.AnalyticsSnapshot) error
	MarkActivity(ctx context.Context, accountID string, day time.Time, stories, posts int) error
	IncrementPostsTracked(ctx context.Context, id string, n int) error
}

// Aggregator computes one account's daily analytics snapshot from its most
// recent posts. Reruns on the same day overwrite the earlier snapshot, so a
// manually re-triggered cycle is safe.
type Aggregator struct {
	store   SnapshotStore
	source  scrape.ProfileDataSource
	retrier Retrier

	postsWindow int
	clock       types.Clock
	logger      *slog.Logger
}

// AggregatorConfig holds the collaborators for creating an Aggregator.
type AggregatorConfig struct {
	Store       SnapshotStore
	Source      scrape.ProfileDataSource
	Retrier     Retrier
	PostsWindow int
	Clock       types.Clock
	Logger      *slog.Logger
}

// NewAggregator creates an Aggregator. A posts window below one falls back
// to twenty.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	window := cfg.PostsWindow
	if window < 1 {
		window = 20
	}
	return &Aggregator{
		store:       cfg.Store,
		source:      cfg.Source,
		retrier:     cfg.Retrier,
		postsWindow: window,
		clock:       clock,
		logger:      logger,
	}
}

// ProcessAccount runs one account's analytics: fetch recent posts and
// profile details, archive posts not seen before, and upsert today's
// snapshot.
func (a *Aggregator) ProcessAccount(ctx context.Context, account *types.TrackedAccount) error {
	var (
		posts   []scrape.FetchedPost
		details scrape.ProfileDetails
	)

	err := a.retrier.Do(ctx, func(ctx context.Context) error {
		fetched, fetchErr := a.source.FetchPosts(ctx, account.Handle, a.postsWindow)
		if fetchErr != nil {
			return fetchErr
		}
		posts = fetched
		return nil
	})
	if err != nil {
		return err
	}

	err = a.retrier.Do(ctx, func(ctx context.Context) error {
		d, fetchErr := a.source.FetchProfileDetails(ctx, account.Handle)
		if fetchErr != nil {
			return fetchErr
		}
		details = d
		return nil
	})
	if err != nil {
		return err
	}

	newCount := a.archivePosts(ctx, account.ID, posts)
	if newCount > 0 {
		if err := a.store.IncrementPostsTracked(ctx, account.ID, newCount); err != nil {
			a.logger.ErrorContext(ctx, "failed to bump posts counter",
				"account_id", account.ID, "error", err)
		}
	}

	snapshot := buildSnapshot(account.ID, posts, details, a.clock.Now())
	if err := a.store.UpsertSnapshot(ctx, snapshot); err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "analytics snapshot written",
		"account_id", account.ID,
		"handle", account.Handle,
		"posts", snapshot.PostsCount,
		"new_posts", newCount,
		"engagement_rate", snapshot.EngagementRate,
	)
	return nil
}

// archivePosts inserts each post if unseen and marks its calendar day.
// Returns how many posts were new.
func (a *Aggregator) archivePosts(ctx context.Context, accountID string, posts []scrape.FetchedPost) int {
	newCount := 0
	for _, fp := range posts {
		inserted, err := a.store.InsertPostIfNew(ctx, &types.Post{
			AccountID:       accountID,
			InstagramPostID: fp.ContentID,
			URL:             fp.URL,
			ThumbnailURL:    fp.ThumbnailURL,
			Caption:         fp.Caption,
			LikesCount:      fp.LikesCount,
			CommentsCount:   fp.CommentsCount,
			PostedAt:        fp.PostedAt,
		})
		if err != nil {
			a.logger.ErrorContext(ctx, "failed to archive post",
				"account_id", accountID, "post_id", fp.ContentID, "error", err)
			continue
		}
		if !inserted {
			continue
		}
		newCount++
		if err := a.store.MarkActivity(ctx, accountID, dayOf(fp.PostedAt), 0, 1); err != nil {
			a.logger.ErrorContext(ctx, "failed to mark post activity",
				"account_id", accountID, "error", err)
		}
	}
	return newCount
}

// buildSnapshot computes the engagement metrics over the fetched posts.
func buildSnapshot(accountID string, posts []scrape.FetchedPost, details scrape.ProfileDetails, now time.Time) *types.AnalyticsSnapshot {
	snapshot := &types.AnalyticsSnapshot{
		AccountID:      accountID,
		Day:            dayOf(now),
		FollowersCount: details.FollowersCount,
		FollowingCount: details.FollowingCount,
	}

	snapshot.PostsCount = len(posts)
	if len(posts) == 0 {
		return snapshot
	}

	totalLikes, totalComments := 0, 0
	oldest, newest := posts[0].PostedAt, posts[0].PostedAt
	for _, p := range posts {
		totalLikes += p.LikesCount
		totalComments += p.CommentsCount
		if p.PostedAt.Before(oldest) {
			oldest = p.PostedAt
		}
		if p.PostedAt.After(newest) {
			newest = p.PostedAt
		}
	}

	snapshot.AvgLikes = round2(float64(totalLikes) / float64(len(posts)))
	snapshot.AvgComments = round2(float64(totalComments) / float64(len(posts)))

	if details.FollowersCount > 0 {
		rate := ((snapshot.AvgLikes + snapshot.AvgComments) / float64(details.FollowersCount)) * 100
		snapshot.EngagementRate = round2(rate)
	}

	if len(posts) >= 2 {
		daysBetween := int(newest.Sub(oldest).Hours() / 24)
		if daysBetween < 1 {
			daysBetween = 1
		}
		snapshot.PostsPerDay = round2(float64(len(posts)) / float64(daysBetween))
	}

	return snapshot
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// dayOf truncates a timestamp to its UTC calendar day.
func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
