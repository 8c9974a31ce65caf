// Package scrape is the anti-corruption layer between alrt domain logic and
// the external profile data provider. It defines the ProfileDataSource
// capability the scheduler's workers consume, an Apify-actor-backed
// implementation, the retry/timeout discipline wrapping every outbound fetch,
// and the cadence math that turns raw post timestamps into profile metrics.
package scrape

import (
	"context"
	"time"

	"alrt/internal/types"
)

// FetchedPost is a single feed post as returned by the provider.
type FetchedPost struct {
	ContentID     string
	URL           string
	ThumbnailURL  string
	Caption       string
	LikesCount    int
	CommentsCount int
	PostedAt      time.Time
	IsPinned      bool
}

// FetchedStory is a single active story as returned by the provider.
// Providers define "active" as posted within the last 24 hours.
type FetchedStory struct {
	ContentID string
	MediaURL  string
	PostedAt  time.Time
	ExpiresAt time.Time
}

// ProfileDetails is the account-level metadata returned by the provider.
type ProfileDetails struct {
	FollowersCount    int
	FollowingCount    int
	ProfilePictureURL string
}

// ProfileDataSource is the capability the workers consume to fetch profile
// activity from the external provider. Implementations perform exactly one
// attempt per call; the Retrier owns the retry/timeout/backoff discipline.
//
// Failures are reported as *types.AppError: upstream_unavailable and
// upstream_rate_limited are transient and retried by the wrapper, while
// upstream_no_data means the provider answered definitively with nothing
// (private or empty profile) and is surfaced immediately.
type ProfileDataSource interface {
	// FetchProfile fetches profile details and recent posts, and derives
	// the posting-cadence metrics for the account.
	FetchProfile(ctx context.Context, handle string) (*types.ProfileMetrics, error)

	// FetchProfileDetails returns the account-level metadata alone.
	FetchProfileDetails(ctx context.Context, handle string) (ProfileDetails, error)

	// FetchPosts returns up to limit most recent posts, newest first.
	FetchPosts(ctx context.Context, handle string, limit int) ([]FetchedPost, error)

	// FetchActiveStories returns the currently-active stories.
	FetchActiveStories(ctx context.Context, handle string) ([]FetchedStory, error)

	// CheckAdsLibrary counts currently listed ads for a Facebook page.
	CheckAdsLibrary(ctx context.Context, pageURL string) (types.AdsResult, error)
}
