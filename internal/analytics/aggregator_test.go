package analytics

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"alrt/internal/scrape"
	"alrt/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type passRetrier struct{}

func (passRetrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockSource struct {
	posts      []scrape.FetchedPost
	postsErr   error
	details    scrape.ProfileDetails
	detailsErr error
}

func (m *mockSource) FetchProfile(context.Context, string) (*types.ProfileMetrics, error) {
	return nil, nil
}

func (m *mockSource) FetchProfileDetails(context.Context, string) (scrape.ProfileDetails, error) {
	return m.details, m.detailsErr
}

func (m *mockSource) FetchPosts(context.Context, string, int) ([]scrape.FetchedPost, error) {
	return m.posts, m.postsErr
}

func (m *mockSource) FetchActiveStories(context.Context, string) ([]scrape.FetchedStory, error) {
	return nil, nil
}

func (m *mockSource) CheckAdsLibrary(context.Context, string) (types.AdsResult, error) {
	return types.AdsResult{}, nil
}

type mockStore struct {
	seen          map[string]bool
	inserted      []*types.Post
	snapshot      *types.AnalyticsSnapshot
	activityMarks []time.Time
	counterBumps  []int
}

func newMockStore() *mockStore {
	return &mockStore{seen: make(map[string]bool)}
}

func (m *mockStore) InsertPostIfNew(_ context.Context, p *types.Post) (bool, error) {
	if m.seen[p.InstagramPostID] {
		return false, nil
	}
	m.seen[p.InstagramPostID] = true
	m.inserted = append(m.inserted, p)
	return true, nil
}

func (m *mockStore) UpsertSnapshot(_ context.Context, s *types.AnalyticsSnapshot) error {
	m.snapshot = s
	return nil
}

func (m *mockStore) MarkActivity(_ context.Context, _ string, day time.Time, _, _ int) error {
	m.activityMarks = append(m.activityMarks, day)
	return nil
}

func (m *mockStore) IncrementPostsTracked(_ context.Context, _ string, n int) error {
	m.counterBumps = append(m.counterBumps, n)
	return nil
}

func newTestAggregator(store *mockStore, source *mockSource, now time.Time) *Aggregator {
	return NewAggregator(AggregatorConfig{
		Store:       store,
		Source:      source,
		Retrier:     passRetrier{},
		PostsWindow: 20,
		Clock:       fakeClock{now: now},
		Logger:      quietLogger(),
	})
}

func TestProcessAccount_ComputesEngagementRate(t *testing.T) {
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	source := &mockSource{
		details: scrape.ProfileDetails{FollowersCount: 1000, FollowingCount: 200},
		posts: []scrape.FetchedPost{
			{ContentID: "p1", LikesCount: 60, CommentsCount: 12, PostedAt: now.AddDate(0, 0, -1)},
			{ContentID: "p2", LikesCount: 40, CommentsCount: 8, PostedAt: now.AddDate(0, 0, -3)},
		},
	}
	store := newMockStore()

	agg := newTestAggregator(store, source, now)
	require.NoError(t, agg.ProcessAccount(context.Background(), &types.TrackedAccount{ID: "acc-1", Handle: "acme"}))

	snap := store.snapshot
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.PostsCount)
	assert.Equal(t, 1000, snap.FollowersCount)
	assert.Equal(t, 50.0, snap.AvgLikes)
	assert.Equal(t, 10.0, snap.AvgComments)
	// ((50 + 10) / 1000) * 100 = 6.0
	assert.Equal(t, 6.0, snap.EngagementRate)
	// 2 posts over 2 days.
	assert.Equal(t, 1.0, snap.PostsPerDay)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), snap.Day)
}

func TestProcessAccount_ZeroFollowersYieldsZeroRate(t *testing.T) {
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	source := &mockSource{
		details: scrape.ProfileDetails{FollowersCount: 0},
		posts: []scrape.FetchedPost{
			{ContentID: "p1", LikesCount: 100, CommentsCount: 20, PostedAt: now.AddDate(0, 0, -1)},
		},
	}
	store := newMockStore()

	agg := newTestAggregator(store, source, now)
	require.NoError(t, agg.ProcessAccount(context.Background(), &types.TrackedAccount{ID: "acc-1", Handle: "acme"}))

	assert.Equal(t, 0.0, store.snapshot.EngagementRate)
}

func TestProcessAccount_SinglePostHasNoPostsPerDay(t *testing.T) {
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	source := &mockSource{
		details: scrape.ProfileDetails{FollowersCount: 500},
		posts: []scrape.FetchedPost{
			{ContentID: "p1", LikesCount: 10, CommentsCount: 2, PostedAt: now.AddDate(0, 0, -1)},
		},
	}
	store := newMockStore()

	agg := newTestAggregator(store, source, now)
	require.NoError(t, agg.ProcessAccount(context.Background(), &types.TrackedAccount{ID: "acc-1", Handle: "acme"}))

	assert.Equal(t, 0.0, store.snapshot.PostsPerDay)
}

func TestProcessAccount_SameDayBurstClampsDaysToOne(t *testing.T) {
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	source := &mockSource{
		details: scrape.ProfileDetails{FollowersCount: 500},
		posts: []scrape.FetchedPost{
			{ContentID: "p1", PostedAt: now.Add(-1 * time.Hour)},
			{ContentID: "p2", PostedAt: now.Add(-2 * time.Hour)},
			{ContentID: "p3", PostedAt: now.Add(-3 * time.Hour)},
		},
	}
	store := newMockStore()

	agg := newTestAggregator(store, source, now)
	require.NoError(t, agg.ProcessAccount(context.Background(), &types.TrackedAccount{ID: "acc-1", Handle: "acme"}))

	assert.Equal(t, 3.0, store.snapshot.PostsPerDay)
}

func TestProcessAccount_ArchivesOnlyUnseenPosts(t *testing.T) {
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	source := &mockSource{
		details: scrape.ProfileDetails{FollowersCount: 500},
		posts: []scrape.FetchedPost{
			{ContentID: "p1", PostedAt: now.AddDate(0, 0, -1)},
			{ContentID: "p2", PostedAt: now.AddDate(0, 0, -2)},
		},
	}
	store := newMockStore()
	store.seen["p1"] = true // archived by an earlier run

	agg := newTestAggregator(store, source, now)
	require.NoError(t, agg.ProcessAccount(context.Background(), &types.TrackedAccount{ID: "acc-1", Handle: "acme"}))

	require.Len(t, store.inserted, 1)
	assert.Equal(t, "p2", store.inserted[0].InstagramPostID)
	assert.Equal(t, []int{1}, store.counterBumps)
	// Calendar marked only for the newly archived post.
	assert.Equal(t, []time.Time{time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)}, store.activityMarks)
	// Snapshot still covers both fetched posts.
	assert.Equal(t, 2, store.snapshot.PostsCount)
}

func TestProcessAccount_NoPostsWritesEmptySnapshot(t *testing.T) {
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	source := &mockSource{details: scrape.ProfileDetails{FollowersCount: 500}}
	store := newMockStore()

	agg := newTestAggregator(store, source, now)
	require.NoError(t, agg.ProcessAccount(context.Background(), &types.TrackedAccount{ID: "acc-1", Handle: "acme"}))

	snap := store.snapshot
	require.NotNil(t, snap)
	assert.Equal(t, 0, snap.PostsCount)
	assert.Equal(t, 0.0, snap.EngagementRate)
	assert.Equal(t, 500, snap.FollowersCount)
	assert.Empty(t, store.counterBumps)
}

func TestProcessAccount_FetchFailurePropagates(t *testing.T) {
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	source := &mockSource{postsErr: types.NewAppError(types.ErrCodeUpstreamUnavailable, "provider down", nil)}
	store := newMockStore()

	agg := newTestAggregator(store, source, now)
	err := agg.ProcessAccount(context.Background(), &types.TrackedAccount{ID: "acc-1", Handle: "acme"})

	require.Error(t, err)
	assert.Nil(t, store.snapshot)
}
