// Package scheduler implements the background work pipeline: typed bounded
// task queues, the worker pools that drain them, the task handlers that call
// the external data provider, the periodic triggers that feed the queues, and
// the Scheduler facade the API layer talks to.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"alrt/internal/types"

	"github.com/google/uuid"
)

// Task is one unit of background work. Tasks are addressed by account ID;
// the handle and page URL are snapshotted at enqueue time so handlers do not
// need a read just to know what to fetch.
type Task struct {
	ID         string
	Kind       types.TaskKind
	AccountID  string
	Handle     string
	PageURL    string
	EnqueuedAt time.Time
}

// NewTask creates a task with a fresh ID.
func NewTask(kind types.TaskKind, accountID, handle string) Task {
	return Task{
		ID:         uuid.New().String(),
		Kind:       kind,
		AccountID:  accountID,
		Handle:     handle,
		EnqueuedAt: time.Now().UTC(),
	}
}

// TaskQueue is a bounded in-memory FIFO queue for one kind of task. Queues
// are intentionally not durable; on restart the periodic triggers repopulate
// them. There is no deduplication: enqueueing the same account twice yields
// two tasks, and the second run overwrites the first's results.
type TaskQueue struct {
	kind     types.TaskKind
	capacity int
	tasks    chan Task
}

// NewTaskQueue creates a queue for the given task kind with the given
// capacity.
func NewTaskQueue(kind types.TaskKind, capacity int) *TaskQueue {
	return &TaskQueue{
		kind:     kind,
		capacity: capacity,
		tasks:    make(chan Task, capacity),
	}
}

// Kind returns the task kind this queue carries.
func (q *TaskQueue) Kind() types.TaskKind { return q.kind }

// Len returns the number of tasks currently waiting.
func (q *TaskQueue) Len() int { return len(q.tasks) }

// Capacity returns the queue's fixed capacity.
func (q *TaskQueue) Capacity() int { return q.capacity }

// Enqueue adds a task without blocking. A full queue is reported as a
// queue_full AppError so callers can surface backpressure immediately
// instead of stalling request handlers.
func (q *TaskQueue) Enqueue(task Task) error {
	select {
	case q.tasks <- task:
		return nil
	default:
		appErr := types.NewAppError(types.ErrCodeQueueFull,
			fmt.Sprintf("%s queue is full", q.kind), nil)
		appErr.Details = map[string]any{
			"kind":     string(q.kind),
			"capacity": q.capacity,
		}
		return appErr
	}
}

// Dequeue blocks until a task is available or ctx is done. The second return
// value is false when the wait was cancelled.
func (q *TaskQueue) Dequeue(ctx context.Context) (Task, bool) {
	select {
	case task := <-q.tasks:
		return task, true
	case <-ctx.Done():
		return Task{}, false
	}
}
