package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"alrt/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler records every task it sees and can be programmed to fail
// or panic.
type recordingHandler struct {
	mu       sync.Mutex
	handled  []Task
	behavior func(task Task) error
	done     chan struct{} // closed-channel signal per handled task
}

func newRecordingHandler(buffer int) *recordingHandler {
	return &recordingHandler{done: make(chan struct{}, buffer)}
}

func (h *recordingHandler) Handle(_ context.Context, task Task) error {
	h.mu.Lock()
	h.handled = append(h.handled, task)
	behavior := h.behavior
	h.mu.Unlock()

	defer func() { h.done <- struct{}{} }()
	if behavior != nil {
		return behavior(task)
	}
	return nil
}

func (h *recordingHandler) handledCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func (h *recordingHandler) waitN(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for task %d of %d", i+1, n)
		}
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPool(queue *TaskQueue, handler TaskHandler, workers int) *WorkerPool {
	return NewWorkerPool(WorkerPoolConfig{
		Queue:         queue,
		Handler:       handler,
		Workers:       workers,
		TaskDelay:     time.Millisecond,
		RecoveryDelay: time.Millisecond,
		Logger:        quietLogger(),
	})
}

func TestWorkerPool_ProcessesQueuedTasks(t *testing.T) {
	q := NewTaskQueue(types.TaskProfileRefresh, 10)
	handler := newRecordingHandler(10)
	pool := newTestPool(q, handler, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(NewTask(types.TaskProfileRefresh, "acc", "handle")))
	}

	handler.waitN(t, 5)
	assert.Equal(t, 5, handler.handledCount())

	cancel()
	pool.Wait()
}

func TestWorkerPool_SurvivesHandlerErrors(t *testing.T) {
	q := NewTaskQueue(types.TaskProfileRefresh, 10)
	handler := newRecordingHandler(10)
	handler.behavior = func(Task) error { return errors.New("provider down") }
	pool := newTestPool(q, handler, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(NewTask(types.TaskProfileRefresh, "acc", "handle")))
	}

	// All three are processed despite each one failing.
	handler.waitN(t, 3)
	assert.Equal(t, 3, handler.handledCount())

	cancel()
	pool.Wait()
}

func TestWorkerPool_RecoversFromPanic(t *testing.T) {
	q := NewTaskQueue(types.TaskProfileRefresh, 10)
	handler := newRecordingHandler(10)
	first := true
	handler.behavior = func(Task) error {
		if first {
			first = false
			panic("poisoned task")
		}
		return nil
	}
	pool := newTestPool(q, handler, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	require.NoError(t, q.Enqueue(NewTask(types.TaskProfileRefresh, "bad", "handle")))
	require.NoError(t, q.Enqueue(NewTask(types.TaskProfileRefresh, "good", "handle")))

	// The worker loop survives the panic and processes the next task.
	handler.waitN(t, 2)
	assert.Equal(t, 2, handler.handledCount())

	cancel()
	pool.Wait()
}

func TestWorkerPool_StopsOnContextCancel(t *testing.T) {
	q := NewTaskQueue(types.TaskProfileRefresh, 10)
	handler := newRecordingHandler(10)
	pool := newTestPool(q, handler, 3)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after context cancellation")
	}
}
