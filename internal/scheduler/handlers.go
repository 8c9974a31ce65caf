package scheduler

import (
	"context"
	"log/slog"
	"time"

	"alrt/internal/scrape"
	"alrt/internal/types"
)

// Retrier wraps a fetch in the retry/timeout/backoff discipline.
// Satisfied by *scrape.Retrier.
type Retrier interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProfileStore is the subset of the account repository the profile handler
// writes through.
type ProfileStore interface {
	SetCheckStatus(ctx context.Context, id string, status types.CheckStatus) error
	RecordCheckSuccess(ctx context.Context, id string, m types.ProfileMetrics, now time.Time) error
	RecordCheckFailure(ctx context.Context, id, message string, now time.Time) error
}

// AdsStore is the subset of the account repository the ads handler writes
// through.
type AdsStore interface {
	SetAdsStatus(ctx context.Context, id string, status types.AdsStatus) error
	RecordAdsResult(ctx context.Context, id string, res types.AdsResult) error
}

// StoriesStore is everything the stories handler persists: account counters,
// the story archive, and the activity calendar.
type StoriesStore interface {
	RecordStoriesResult(ctx context.Context, id string, newCount int, lastStoryDate *time.Time) error
	InsertStoryIfNew(ctx context.Context, s *types.Story) (bool, error)
	SetStoryMirroredURL(ctx context.Context, storyID, mirroredURL string) error
	MarkActivity(ctx context.Context, accountID string, day time.Time, stories, posts int) error
}

// ThumbnailMirror copies a story thumbnail to durable storage and returns
// the mirrored URL. Implemented by the media package.
type ThumbnailMirror interface {
	Mirror(ctx context.Context, accountID, storyID, mediaURL string) (string, error)
}

// ProfileHandler refreshes one account's posting metrics. Fetch failures are
// recorded on the account row, never propagated as panics; the account ends
// in success or failed and the worker loop keeps running either way.
type ProfileHandler struct {
	store   ProfileStore
	source  scrape.ProfileDataSource
	retrier Retrier
	clock   types.Clock
	logger  *slog.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(store ProfileStore, source scrape.ProfileDataSource, retrier Retrier, clock types.Clock, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{store: store, source: source, retrier: retrier, clock: clock, logger: logger}
}

// Handle runs one profile refresh.
func (h *ProfileHandler) Handle(ctx context.Context, task Task) error {
	if err := h.store.SetCheckStatus(ctx, task.AccountID, types.CheckProcessing); err != nil {
		return err
	}

	var metrics *types.ProfileMetrics
	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		m, fetchErr := h.source.FetchProfile(ctx, task.Handle)
		if fetchErr != nil {
			return fetchErr
		}
		metrics = m
		return nil
	})
	if err != nil {
		if recErr := h.store.RecordCheckFailure(ctx, task.AccountID, err.Error(), h.clock.Now()); recErr != nil {
			h.logger.ErrorContext(ctx, "failed to record check failure",
				"account_id", task.AccountID, "error", recErr)
		}
		return err
	}

	if err := h.store.RecordCheckSuccess(ctx, task.AccountID, *metrics, h.clock.Now()); err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "profile refreshed",
		"account_id", task.AccountID,
		"handle", task.Handle,
		"days_inactive", metrics.DaysInactive,
		"status_signal", string(metrics.StatusSignal),
	)
	return nil
}

// AdsHandler checks the Facebook ads library for one account's linked page.
type AdsHandler struct {
	store   AdsStore
	source  scrape.ProfileDataSource
	retrier Retrier
	logger  *slog.Logger
}

// NewAdsHandler creates an AdsHandler.
func NewAdsHandler(store AdsStore, source scrape.ProfileDataSource, retrier Retrier, logger *slog.Logger) *AdsHandler {
	return &AdsHandler{store: store, source: source, retrier: retrier, logger: logger}
}

// Handle runs one ads-library check.
func (h *AdsHandler) Handle(ctx context.Context, task Task) error {
	if task.PageURL == "" {
		// Page link was removed between enqueue and processing.
		return h.store.SetAdsStatus(ctx, task.AccountID, types.AdsUnknown)
	}

	if err := h.store.SetAdsStatus(ctx, task.AccountID, types.AdsChecking); err != nil {
		return err
	}

	var result types.AdsResult
	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		r, fetchErr := h.source.CheckAdsLibrary(ctx, task.PageURL)
		if fetchErr != nil {
			return fetchErr
		}
		result = r
		return nil
	})
	if err != nil {
		if recErr := h.store.SetAdsStatus(ctx, task.AccountID, types.AdsError); recErr != nil {
			h.logger.ErrorContext(ctx, "failed to record ads error",
				"account_id", task.AccountID, "error", recErr)
		}
		return err
	}

	if err := h.store.RecordAdsResult(ctx, task.AccountID, result); err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "ads library checked",
		"account_id", task.AccountID,
		"ads_count", result.Count,
		"ads_status", string(result.Status),
	)
	return nil
}

// StoriesHandler archives an account's currently-active stories. Every new
// story gets its thumbnail mirrored best-effort; a mirror failure is logged
// and the story is archived with an empty mirrored URL.
type StoriesHandler struct {
	store   StoriesStore
	source  scrape.ProfileDataSource
	retrier Retrier
	mirror  ThumbnailMirror
	clock   types.Clock
	logger  *slog.Logger
}

// NewStoriesHandler creates a StoriesHandler. A nil mirror disables
// thumbnail mirroring.
func NewStoriesHandler(store StoriesStore, source scrape.ProfileDataSource, retrier Retrier, mirror ThumbnailMirror, clock types.Clock, logger *slog.Logger) *StoriesHandler {
	return &StoriesHandler{store: store, source: source, retrier: retrier, mirror: mirror, clock: clock, logger: logger}
}

// Handle runs one stories refresh.
func (h *StoriesHandler) Handle(ctx context.Context, task Task) error {
	var fetched []scrape.FetchedStory
	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		stories, fetchErr := h.source.FetchActiveStories(ctx, task.Handle)
		if fetchErr != nil {
			return fetchErr
		}
		fetched = stories
		return nil
	})
	if err != nil {
		return err
	}

	newCount := 0
	var lastStoryDate *time.Time
	for _, fs := range fetched {
		story := &types.Story{
			AccountID:        task.AccountID,
			InstagramStoryID: fs.ContentID,
			MediaURL:         fs.MediaURL,
			PostedAt:         fs.PostedAt,
			ExpiresAt:        fs.ExpiresAt,
		}

		inserted, insErr := h.store.InsertStoryIfNew(ctx, story)
		if insErr != nil {
			h.logger.ErrorContext(ctx, "failed to archive story",
				"account_id", task.AccountID,
				"story_id", fs.ContentID,
				"error", insErr,
			)
			continue
		}
		if !inserted {
			// Already archived on a previous cycle; its thumbnail was
			// mirrored then, so skip the download entirely.
			continue
		}

		if h.mirror != nil && fs.MediaURL != "" {
			mirrored, mirrorErr := h.mirror.Mirror(ctx, task.AccountID, fs.ContentID, fs.MediaURL)
			if mirrorErr != nil {
				h.logger.WarnContext(ctx, "thumbnail mirror failed",
					"account_id", task.AccountID,
					"story_id", fs.ContentID,
					"error", mirrorErr,
				)
			} else if urlErr := h.store.SetStoryMirroredURL(ctx, story.ID, mirrored); urlErr != nil {
				h.logger.ErrorContext(ctx, "failed to record mirrored thumbnail",
					"account_id", task.AccountID,
					"story_id", fs.ContentID,
					"error", urlErr,
				)
			}
		}

		newCount++
		postedAt := fs.PostedAt
		if lastStoryDate == nil || postedAt.After(*lastStoryDate) {
			lastStoryDate = &postedAt
		}
		if markErr := h.store.MarkActivity(ctx, task.AccountID, dayOf(fs.PostedAt), 1, 0); markErr != nil {
			h.logger.ErrorContext(ctx, "failed to mark story activity",
				"account_id", task.AccountID, "error", markErr)
		}
	}

	if err := h.store.RecordStoriesResult(ctx, task.AccountID, newCount, lastStoryDate); err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "stories refreshed",
		"account_id", task.AccountID,
		"handle", task.Handle,
		"new_stories", newCount,
	)
	return nil
}

// dayOf truncates a timestamp to its UTC calendar day.
func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
