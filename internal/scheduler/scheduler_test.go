package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"alrt/internal/config"
	"alrt/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockMarker records status writes from the facade.
type mockMarker struct {
	mu            sync.Mutex
	checkStatuses map[string][]types.CheckStatus
	adsStatuses   map[string][]types.AdsStatus
}

func newMockMarker() *mockMarker {
	return &mockMarker{
		checkStatuses: make(map[string][]types.CheckStatus),
		adsStatuses:   make(map[string][]types.AdsStatus),
	}
}

func (m *mockMarker) SetCheckStatus(_ context.Context, id string, status types.CheckStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkStatuses[id] = append(m.checkStatuses[id], status)
	return nil
}

func (m *mockMarker) SetAdsStatus(_ context.Context, id string, status types.AdsStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adsStatuses[id] = append(m.adsStatuses[id], status)
	return nil
}

func schedulerTestConfig(capacity int) config.SchedulerConfig {
	return config.SchedulerConfig{
		QueueCapacity:  capacity,
		ProfileWorkers: 1,
		AdsWorkers:     1,
		StoriesWorkers: 1,
		TaskDelay:      time.Millisecond,
		RecoveryDelay:  time.Millisecond,
	}
}

func newTestScheduler(t *testing.T, capacity int, handler TaskHandler) (*Scheduler, *mockMarker) {
	t.Helper()
	marker := newMockMarker()
	if handler == nil {
		handler = newRecordingHandler(capacity * 3)
	}
	s := New(SchedulerConfig{
		Config:         schedulerTestConfig(capacity),
		Accounts:       marker,
		ProfileHandler: handler,
		AdsHandler:     handler,
		StoriesHandler: handler,
		Logger:         quietLogger(),
	})
	return s, marker
}

func TestScheduler_EnqueueProfileRefreshMarksQueuedFirst(t *testing.T) {
	s, marker := newTestScheduler(t, 10, nil)

	account := &types.TrackedAccount{ID: "acc-1", Handle: "acme"}
	require.NoError(t, s.EnqueueProfileRefresh(context.Background(), account))

	assert.Equal(t, []types.CheckStatus{types.CheckQueued}, marker.checkStatuses["acc-1"])
	assert.Equal(t, 1, s.GetQueueDepths()[types.TaskProfileRefresh])
}

func TestScheduler_EnqueueAdsCheckRequiresPageURL(t *testing.T) {
	s, marker := newTestScheduler(t, 10, nil)

	// No linked page: silently skipped.
	require.NoError(t, s.EnqueueAdsCheck(context.Background(), &types.TrackedAccount{ID: "a", Handle: "h"}))
	assert.Equal(t, 0, s.GetQueueDepths()[types.TaskAdsCheck])

	account := &types.TrackedAccount{ID: "b", Handle: "h", FacebookPageURL: "https://www.facebook.com/acme"}
	require.NoError(t, s.EnqueueAdsCheck(context.Background(), account))
	assert.Equal(t, []types.AdsStatus{types.AdsChecking}, marker.adsStatuses["b"])
	assert.Equal(t, 1, s.GetQueueDepths()[types.TaskAdsCheck])
}

func TestScheduler_BackpressureSurfacesQueueFull(t *testing.T) {
	s, marker := newTestScheduler(t, 1, nil)

	account := &types.TrackedAccount{ID: "acc-1", Handle: "acme"}
	require.NoError(t, s.EnqueueProfileRefresh(context.Background(), account))

	err := s.EnqueueProfileRefresh(context.Background(), account)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeQueueFull, appErr.Code)

	// Both attempts marked the account queued; the second write is harmless.
	assert.Len(t, marker.checkStatuses["acc-1"], 2)
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	handler := newRecordingHandler(10)
	s, _ := newTestScheduler(t, 10, handler)

	s.Start(context.Background())
	s.Start(context.Background())

	account := &types.TrackedAccount{ID: "acc-1", Handle: "acme"}
	require.NoError(t, s.EnqueueProfileRefresh(context.Background(), account))

	// Exactly one pool drains the queue; the task is handled once.
	handler.waitN(t, 1)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, handler.handledCount())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestScheduler_StopWithoutStartIsNoOp(t *testing.T) {
	s, _ := newTestScheduler(t, 10, nil)
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_StopDrainsWorkers(t *testing.T) {
	handler := newRecordingHandler(10)
	s, _ := newTestScheduler(t, 10, handler)

	s.Start(context.Background())

	account := &types.TrackedAccount{ID: "acc-1", Handle: "acme"}
	require.NoError(t, s.EnqueueProfileRefresh(context.Background(), account))
	handler.waitN(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	// A second stop is a no-op.
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_GetQueueDepthsCoversAllKinds(t *testing.T) {
	s, _ := newTestScheduler(t, 10, nil)

	depths := s.GetQueueDepths()
	require.Len(t, depths, 3)
	assert.Contains(t, depths, types.TaskProfileRefresh)
	assert.Contains(t, depths, types.TaskAdsCheck)
	assert.Contains(t, depths, types.TaskStoriesRefresh)
}
