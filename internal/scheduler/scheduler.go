package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"alrt/internal/config"
	"alrt/internal/types"
)

// AccountMarker is the subset of the account repository the facade uses to
// flag accounts as queued before their task lands on a queue.
type AccountMarker interface {
	SetCheckStatus(ctx context.Context, id string, status types.CheckStatus) error
	SetAdsStatus(ctx context.Context, id string, status types.AdsStatus) error
}

// Scheduler owns the three task queues, their worker pools, and the periodic
// triggers. It is the single entry point the API layer uses to request
// background work.
//
// Start is idempotent; Stop cancels every loop and waits for in-flight tasks
// to finish. Queues are in-memory only, so Stop discards whatever is still
// waiting; the periodic triggers rebuild the backlog after a restart.
type Scheduler struct {
	cfg config.SchedulerConfig

	queues map[types.TaskKind]*TaskQueue
	pools  []*WorkerPool

	triggers *Triggers
	accounts AccountMarker
	metrics  TaskMetrics
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// SchedulerConfig holds the collaborators for creating a Scheduler.
type SchedulerConfig struct {
	Config   config.SchedulerConfig
	Accounts AccountMarker

	ProfileHandler TaskHandler
	AdsHandler     TaskHandler
	StoriesHandler TaskHandler

	Triggers *Triggers
	Metrics  TaskMetrics
	Logger   *slog.Logger
}

// New creates a Scheduler with one bounded queue and one worker pool per
// task kind.
func New(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	queues := map[types.TaskKind]*TaskQueue{
		types.TaskProfileRefresh: NewTaskQueue(types.TaskProfileRefresh, cfg.Config.QueueCapacity),
		types.TaskAdsCheck:       NewTaskQueue(types.TaskAdsCheck, cfg.Config.QueueCapacity),
		types.TaskStoriesRefresh: NewTaskQueue(types.TaskStoriesRefresh, cfg.Config.QueueCapacity),
	}

	pools := []*WorkerPool{
		NewWorkerPool(WorkerPoolConfig{
			Queue:         queues[types.TaskProfileRefresh],
			Handler:       cfg.ProfileHandler,
			Workers:       cfg.Config.ProfileWorkers,
			TaskDelay:     cfg.Config.TaskDelay,
			RecoveryDelay: cfg.Config.RecoveryDelay,
			Metrics:       metrics,
			Logger:        logger,
		}),
		NewWorkerPool(WorkerPoolConfig{
			Queue:         queues[types.TaskAdsCheck],
			Handler:       cfg.AdsHandler,
			Workers:       cfg.Config.AdsWorkers,
			TaskDelay:     cfg.Config.TaskDelay,
			RecoveryDelay: cfg.Config.RecoveryDelay,
			Metrics:       metrics,
			Logger:        logger,
		}),
		NewWorkerPool(WorkerPoolConfig{
			Queue:         queues[types.TaskStoriesRefresh],
			Handler:       cfg.StoriesHandler,
			Workers:       cfg.Config.StoriesWorkers,
			TaskDelay:     cfg.Config.TaskDelay,
			RecoveryDelay: cfg.Config.RecoveryDelay,
			Metrics:       metrics,
			Logger:        logger,
		}),
	}

	return &Scheduler{
		cfg:      cfg.Config,
		queues:   queues,
		pools:    pools,
		triggers: cfg.Triggers,
		accounts: cfg.Accounts,
		metrics:  metrics,
		logger:   logger,
	}
}

// AttachTriggers wires the periodic triggers. It must be called before
// Start; triggers usually take the scheduler itself as their enqueuer, so
// they are constructed second and attached here.
func (s *Scheduler) AttachTriggers(t *Triggers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.triggers = t
	}
}

// Start launches the worker pools and periodic triggers. Calling Start on a
// running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	for _, pool := range s.pools {
		pool.Start(runCtx)
	}
	if s.triggers != nil {
		s.triggers.Start(runCtx)
	}

	s.logger.InfoContext(ctx, "scheduler started",
		"queue_capacity", s.cfg.QueueCapacity,
		"profile_workers", s.cfg.ProfileWorkers,
		"ads_workers", s.cfg.AdsWorkers,
		"stories_workers", s.cfg.StoriesWorkers,
	)
}

// Stop cancels every loop and blocks until in-flight tasks finish or ctx is
// done. Queued-but-unstarted tasks are dropped.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		if s.triggers != nil {
			s.triggers.Wait()
		}
		for _, pool := range s.pools {
			pool.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		s.logger.InfoContext(ctx, "scheduler stopped")
		return nil
	case <-ctx.Done():
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"scheduler shutdown timed out", ctx.Err())
	}
}

// EnqueueProfileRefresh marks the account queued and places a profile
// refresh task on the queue. The status write happens first so the account
// reflects its pending work even if the enqueue then hits backpressure.
func (s *Scheduler) EnqueueProfileRefresh(ctx context.Context, account *types.TrackedAccount) error {
	if err := s.accounts.SetCheckStatus(ctx, account.ID, types.CheckQueued); err != nil {
		return err
	}
	return s.enqueue(ctx, NewTask(types.TaskProfileRefresh, account.ID, account.Handle))
}

// EnqueueAdsCheck marks the account's ads status as checking and places an
// ads-library task on the queue. Accounts without a linked page are skipped.
func (s *Scheduler) EnqueueAdsCheck(ctx context.Context, account *types.TrackedAccount) error {
	if account.FacebookPageURL == "" {
		return nil
	}
	if err := s.accounts.SetAdsStatus(ctx, account.ID, types.AdsChecking); err != nil {
		return err
	}
	task := NewTask(types.TaskAdsCheck, account.ID, account.Handle)
	task.PageURL = account.FacebookPageURL
	return s.enqueue(ctx, task)
}

// EnqueueStoriesRefresh places a stories refresh task on the queue. It
// leaves checkStatus alone: that field tracks the profile refresh cycle and
// the stories handler never writes a terminal value to it, so marking it
// queued here would strand the account in a state no one completes.
func (s *Scheduler) EnqueueStoriesRefresh(ctx context.Context, account *types.TrackedAccount) error {
	return s.enqueue(ctx, NewTask(types.TaskStoriesRefresh, account.ID, account.Handle))
}

func (s *Scheduler) enqueue(ctx context.Context, task Task) error {
	queue := s.queues[task.Kind]
	if err := queue.Enqueue(task); err != nil {
		s.logger.WarnContext(ctx, "enqueue rejected",
			"kind", string(task.Kind),
			"account_id", task.AccountID,
			"depth", queue.Len(),
		)
		return err
	}
	s.metrics.SetQueueDepth(task.Kind, queue.Len())
	return nil
}

// GetQueueDepths returns the current number of waiting tasks per kind.
func (s *Scheduler) GetQueueDepths() map[types.TaskKind]int {
	depths := make(map[types.TaskKind]int, len(s.queues))
	for kind, queue := range s.queues {
		depths[kind] = queue.Len()
	}
	return depths
}
