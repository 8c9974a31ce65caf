package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"alrt/internal/types"
)

// TaskHandler processes one task. A returned error means the task failed
// after the handler recorded the failure; the pool logs it and moves on.
type TaskHandler interface {
	Handle(ctx context.Context, task Task) error
}

// TaskMetrics receives task outcome observations and queue depth updates.
// The metrics package provides the Prometheus-backed implementation.
type TaskMetrics interface {
	ObserveTask(kind types.TaskKind, outcome string, d time.Duration)
	SetQueueDepth(kind types.TaskKind, depth int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveTask(types.TaskKind, string, time.Duration) {}
func (nopMetrics) SetQueueDepth(types.TaskKind, int)                {}

// WorkerPool runs a fixed number of worker loops against one queue. Each
// loop dequeues, processes, pauses, and repeats until the pool's context is
// cancelled. A handler panic is recovered and logged; after a recovery pause
// the loop continues, so one poisoned task can never kill a worker.
type WorkerPool struct {
	queue   *TaskQueue
	handler TaskHandler
	workers int

	taskDelay     time.Duration
	recoveryDelay time.Duration

	metrics TaskMetrics
	logger  *slog.Logger

	wg sync.WaitGroup
}

// WorkerPoolConfig holds the configuration for creating a WorkerPool.
type WorkerPoolConfig struct {
	Queue         *TaskQueue
	Handler       TaskHandler
	Workers       int
	TaskDelay     time.Duration
	RecoveryDelay time.Duration
	Metrics       TaskMetrics
	Logger        *slog.Logger
}

// NewWorkerPool creates a pool. Workers below one is clamped to one.
func NewWorkerPool(cfg WorkerPoolConfig) *WorkerPool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		queue:         cfg.Queue,
		handler:       cfg.Handler,
		workers:       workers,
		taskDelay:     cfg.TaskDelay,
		recoveryDelay: cfg.RecoveryDelay,
		metrics:       metrics,
		logger:        logger,
	}
}

// Start launches the worker loops. It returns immediately; the loops run
// until ctx is cancelled.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
}

// Wait blocks until all worker loops have exited.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()

	logger := p.logger.With("queue", string(p.queue.Kind()), "worker", id)
	logger.InfoContext(ctx, "worker started")

	for {
		task, ok := p.queue.Dequeue(ctx)
		if !ok {
			logger.InfoContext(ctx, "worker stopped")
			return
		}
		p.metrics.SetQueueDepth(p.queue.Kind(), p.queue.Len())

		p.process(ctx, logger, task)

		if !sleepCtx(ctx, p.taskDelay) {
			logger.InfoContext(ctx, "worker stopped")
			return
		}
	}
}

// process runs the handler for one task with panic containment.
func (p *WorkerPool) process(ctx context.Context, logger *slog.Logger, task Task) {
	start := time.Now()
	outcome := "success"

	defer func() {
		if r := recover(); r != nil {
			p.metrics.ObserveTask(task.Kind, "panic", time.Since(start))
			logger.ErrorContext(ctx, "handler panicked",
				"task_id", task.ID,
				"account_id", task.AccountID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			sleepCtx(ctx, p.recoveryDelay)
		}
	}()

	if err := p.handler.Handle(ctx, task); err != nil {
		outcome = "failure"
		logger.WarnContext(ctx, "task failed",
			"task_id", task.ID,
			"account_id", task.AccountID,
			"error", err,
		)
	}
	p.metrics.ObserveTask(task.Kind, outcome, time.Since(start))
}

// sleepCtx sleeps for d unless ctx is cancelled first. It reports whether
// the full sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
