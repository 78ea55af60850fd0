package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// maxAbandonGrace bounds how long an attempt that outlived its time limit
// is waited for before the task is failed without a retry.
const maxAbandonGrace = 5 * time.Second

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// Queues maps each queue name to its worker count
	Queues map[string]int

	// QueueSize determines the buffer size of each in-memory queue
	QueueSize int

	// MaxRetries is how many times a failed execution is retried
	MaxRetries int

	// RetryDelay is the fixed wait between attempts
	RetryDelay time.Duration

	// TimeLimit bounds a single execution attempt
	TimeLimit time.Duration

	// StuckTaskAge defines how long a task can be in processing state
	// before it's considered stuck and reset. Pending rows this old that
	// are not queued in this process are queued again.
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck tasks
	// If zero, defaults to 5 minutes
	StuckTaskCheckInterval time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		Queues: map[string]int{
			QueueFoodImage: 2,
			QueueNutrients: 2,
			QueueReceipts:  1,
		},
		QueueSize:              100,
		MaxRetries:             3,
		RetryDelay:             60 * time.Second,
		TimeLimit:              300 * time.Second,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
	}
}

// TaskRunner manages background task processing
type TaskRunner struct {
	store      TaskStore
	registry   *Registry
	queues     map[string]*TaskQueue
	pools      []*WorkerPool
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopOnce   sync.Once
	config     TaskRunnerConfig
	logger     *slog.Logger
	errHandler func(task Task, err error)

	// tracked holds the IDs of tasks queued or running in this process.
	trackMu sync.Mutex
	tracked map[uuid.UUID]struct{}
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(
	store TaskStore,
	registry *Registry,
	config TaskRunnerConfig,
	logger *slog.Logger,
) *TaskRunner {
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = 5 * time.Minute
	}
	if config.TimeLimit <= 0 {
		config.TimeLimit = 300 * time.Second
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Millisecond
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if len(config.Queues) == 0 {
		config.Queues = DefaultTaskRunnerConfig().Queues
	}

	logger = logger.With("component", "task_runner")
	ctx, cancel := context.WithCancel(context.Background())

	queues := make(map[string]*TaskQueue, len(config.Queues))
	for name := range config.Queues {
		queues[name] = NewTaskQueue(name, config.QueueSize, logger)
	}

	return &TaskRunner{
		store:      store,
		registry:   registry,
		queues:     queues,
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger,
		tracked:    make(map[uuid.UUID]struct{}),
		errHandler: func(task Task, err error) {
			logger.Error("task execution failed",
				"task_id", task.ID(),
				"task_type", task.Type(),
				"error", err)
		},
	}
}

// SetErrorHandler allows setting a custom error handler function.
// It is called once per task after the final failed attempt.
func (r *TaskRunner) SetErrorHandler(handler func(task Task, err error)) {
	r.errHandler = handler
}

// Submit saves the task and adds it to its queue.
func (r *TaskRunner) Submit(ctx context.Context, task Task) error {
	queue, err := r.queueFor(task.Type())
	if err != nil {
		return err
	}

	if err := r.store.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	r.track(task.ID())
	if err := queue.Enqueue(task); err != nil {
		r.untrack(task.ID())
		// The caller is told the task was not accepted, so the row must not
		// run later through recovery.
		if updateErr := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusFailed, err.Error()); updateErr != nil {
			r.logger.Error("failed to mark rejected task failed",
				"task_id", task.ID(),
				"error", updateErr)
		}
		return err
	}
	return nil
}

func (r *TaskRunner) queueFor(taskType string) (*TaskQueue, error) {
	name := QueueFor(taskType)
	queue, ok := r.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: no queue for task type %q", ErrUnknownQueue, taskType)
	}
	return queue, nil
}

// Start loads unfinished tasks, starts the workers and the stuck task
// monitor, then feeds the recovered tasks to their queues in the
// background. A backlog larger than a queue waits for room instead of
// being dropped.
func (r *TaskRunner) Start() error {
	recovered, err := r.loadUnfinished(context.Background())
	if err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	for name, count := range r.config.Queues {
		pool := NewWorkerPool(r.queues[name], count, r.processTask, r.logger)
		pool.Start(r.ctx)
		r.pools = append(r.pools, pool)
	}

	r.wg.Add(2)
	go r.requeueAll(r.ctx, recovered)
	go r.stuckTaskMonitor()

	return nil
}

// Stop cancels in-flight executions, waits for the workers to return and
// closes the queues. Interrupted tasks stay in processing state and are
// recovered on the next start.
func (r *TaskRunner) Stop() {
	r.stopOnce.Do(func() {
		r.cancelFunc()
		for _, pool := range r.pools {
			pool.Wait()
		}
		r.wg.Wait()
		for _, queue := range r.queues {
			queue.Close()
		}
	})
}

// loadUnfinished returns the pending tasks and the processing tasks left by
// the last shutdown, resetting the latter to pending. Every returned row is
// tracked so the stuck monitor leaves it to the recovery feed.
func (r *TaskRunner) loadUnfinished(ctx context.Context) ([]*Record, error) {
	pending, err := r.store.GetPendingTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending tasks: %w", err)
	}

	// All processing tasks regardless of age were interrupted by the last shutdown.
	processing, err := r.store.GetProcessingTasks(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get processing tasks: %w", err)
	}

	r.logger.Info("recovering unfinished tasks",
		"pending_count", len(pending),
		"processing_count", len(processing))

	recovered := make([]*Record, 0, len(pending)+len(processing))
	for _, rec := range pending {
		if r.track(rec.ID) {
			recovered = append(recovered, rec)
		}
	}

	for _, rec := range processing {
		if err := r.store.UpdateTaskStatus(ctx, rec.ID, TaskStatusPending, "Reset after recovery"); err != nil {
			r.logger.Error("failed to reset processing task status",
				"task_id", rec.ID,
				"task_type", rec.Type,
				"error", err)
			continue
		}
		if r.track(rec.ID) {
			recovered = append(recovered, rec)
		}
	}

	return recovered, nil
}

// requeueAll queues recovered tasks, waiting for room in each queue.
func (r *TaskRunner) requeueAll(ctx context.Context, recs []*Record) {
	defer r.wg.Done()

	queued := 0
	for i, rec := range recs {
		if ctx.Err() != nil {
			for _, rest := range recs[i:] {
				r.untrack(rest.ID)
			}
			r.logger.Info("recovery interrupted by shutdown",
				"queued_count", queued,
				"remaining_count", len(recs)-i)
			return
		}
		if r.requeue(ctx, rec, true) {
			queued++
		}
	}
	if len(recs) > 0 {
		r.logger.Info("recovered tasks queued", "queued_count", queued, "total_count", len(recs))
	}
}

// requeue rebuilds a tracked task and queues it. When wait is set it blocks
// until the queue has room. Rows that cannot be rebuilt are failed so they
// are not recovered forever. The task is untracked when it is not queued.
func (r *TaskRunner) requeue(ctx context.Context, rec *Record, wait bool) bool {
	log := r.logger.With("task_id", rec.ID, "task_type", rec.Type)

	task, err := r.registry.Rebuild(rec)
	if err != nil {
		r.untrack(rec.ID)
		log.Error("failed to rebuild task", "error", err)
		if updateErr := r.store.UpdateTaskStatus(ctx, rec.ID, TaskStatusFailed, err.Error()); updateErr != nil {
			log.Error("failed to mark unrecoverable task failed", "error", updateErr)
		}
		return false
	}

	queue, err := r.queueFor(task.Type())
	if err != nil {
		r.untrack(rec.ID)
		log.Error("failed to route recovered task", "error", err)
		return false
	}

	if wait {
		err = queue.EnqueueWait(ctx, task)
	} else {
		err = queue.Enqueue(task)
	}
	if err != nil {
		r.untrack(rec.ID)
		if ctx.Err() == nil {
			log.Warn("failed to requeue task, leaving it pending", "error", err)
		}
		return false
	}
	return true
}

// track marks id as queued in this process. It reports false when id was
// already tracked.
func (r *TaskRunner) track(id uuid.UUID) bool {
	r.trackMu.Lock()
	defer r.trackMu.Unlock()
	if _, ok := r.tracked[id]; ok {
		return false
	}
	r.tracked[id] = struct{}{}
	return true
}

func (r *TaskRunner) untrack(id uuid.UUID) {
	r.trackMu.Lock()
	defer r.trackMu.Unlock()
	delete(r.tracked, id)
}

func (r *TaskRunner) isTracked(id uuid.UUID) bool {
	r.trackMu.Lock()
	defer r.trackMu.Unlock()
	_, ok := r.tracked[id]
	return ok
}

// processTask runs one task through its attempts and records the outcome.
func (r *TaskRunner) processTask(ctx context.Context, task Task, workerID int) {
	logger := r.logger.With(
		"task_id", task.ID(),
		"task_type", task.Type(),
		"worker_id", workerID,
	)
	defer r.untrack(task.ID())

	// Status writes use a context that survives shutdown.
	storeCtx := context.WithoutCancel(ctx)

	if err := r.store.UpdateTaskStatus(storeCtx, task.ID(), TaskStatusProcessing, ""); err != nil {
		logger.Error("failed to update task status to processing", "error", err)
		return
	}

	logger.Info("processing task")

	attempt := 0
	backoff := retry.WithMaxRetries(uint64(r.config.MaxRetries), retry.NewConstant(r.config.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := r.store.IncrementAttempts(storeCtx, task.ID()); err != nil {
			logger.Warn("failed to record attempt", "attempt", attempt, "error", err)
		}

		err := r.execute(ctx, task)
		if err == nil {
			return nil
		}
		if IsPermanent(err) || ctx.Err() != nil {
			return err
		}
		logger.Warn("task attempt failed",
			"attempt", attempt,
			"max_retries", r.config.MaxRetries,
			"error", err)
		return retry.RetryableError(err)
	})

	if err != nil && ctx.Err() != nil {
		logger.Info("task interrupted by shutdown, leaving it for recovery", "attempt", attempt)
		return
	}

	if err != nil {
		logger.Error("task failed", "attempts", attempt, "error", err)
		if updateErr := r.store.UpdateTaskStatus(storeCtx, task.ID(), TaskStatusFailed, err.Error()); updateErr != nil {
			logger.Error("failed to update task status to failed", "error", updateErr)
		}
		if fh, ok := task.(FailureHandler); ok {
			fh.OnFailure(storeCtx, err)
		}
		r.errHandler(task, err)
		return
	}

	logger.Info("task completed successfully", "attempts", attempt)
	if updateErr := r.store.CompleteTask(storeCtx, task.ID(), task.Result()); updateErr != nil {
		logger.Error("failed to update task status to completed", "error", updateErr)
	}
}

// execute runs a single attempt under the time limit. A panic is reported
// as an error. When the limit expires execute waits a short grace period
// for the attempt to return. An attempt that is still running after it is
// abandoned and the error is permanent, so no second Execute runs on the
// same task concurrently.
func (r *TaskRunner) execute(ctx context.Context, task Task) error {
	execCtx, cancel := context.WithTimeout(ctx, r.config.TimeLimit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("task panicked: %v", p)
			}
		}()
		done <- task.Execute(execCtx)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w (%s): %w", ErrTimeLimitExceeded, r.config.TimeLimit, err)
		}
		return err
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		limitErr := fmt.Errorf("%w (%s)", ErrTimeLimitExceeded, r.config.TimeLimit)

		grace := time.NewTimer(min(r.config.TimeLimit, maxAbandonGrace))
		defer grace.Stop()
		select {
		case <-done:
			return limitErr
		case <-grace.C:
			return Permanent(fmt.Errorf("%w, attempt did not stop", limitErr))
		}
	}
}

// stuckTaskMonitor periodically checks for tasks that have been in "processing"
// state for too long and resets them
func (r *TaskRunner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			r.resetStuckTasks(r.ctx)
		}
	}
}

func (r *TaskRunner) resetStuckTasks(ctx context.Context) {
	stuck, err := r.store.GetProcessingTasks(ctx, r.config.StuckTaskAge)
	if err != nil {
		r.logger.Error("failed to check for stuck tasks", "error", err)
	} else if len(stuck) > 0 {
		r.logger.Info("found stuck tasks", "count", len(stuck))
	}
	for _, rec := range stuck {
		if !r.track(rec.ID) {
			continue
		}
		if err := r.store.UpdateTaskStatus(ctx, rec.ID, TaskStatusPending,
			"Reset after being stuck in processing state"); err != nil {
			r.untrack(rec.ID)
			r.logger.Error("failed to reset stuck task status",
				"task_id", rec.ID,
				"task_type", rec.Type,
				"error", err)
			continue
		}
		if r.requeue(ctx, rec, false) {
			r.logger.Info("requeued stuck task", "task_id", rec.ID, "task_type", rec.Type)
		}
	}

	r.requeueStalePending(ctx)
}

// requeueStalePending queues pending rows older than the stuck age that no
// queue in this process holds. A full queue leaves them for the next check.
func (r *TaskRunner) requeueStalePending(ctx context.Context) {
	pending, err := r.store.GetPendingTasks(ctx)
	if err != nil {
		r.logger.Error("failed to check for stale pending tasks", "error", err)
		return
	}

	cutoff := time.Now().UTC().Add(-r.config.StuckTaskAge)
	for _, rec := range pending {
		if !rec.UpdatedAt.Before(cutoff) || !r.track(rec.ID) {
			continue
		}
		if r.requeue(ctx, rec, false) {
			r.logger.Info("requeued stale pending task", "task_id", rec.ID, "task_type", rec.Type)
		}
	}
}

// QueueLen returns the number of tasks waiting in the named queue.
func (r *TaskRunner) QueueLen(name string) int {
	if q, ok := r.queues[name]; ok {
		return q.Len()
	}
	return 0
}

// Submitter is the part of TaskRunner used by the event handler.
type Submitter interface {
	Submit(ctx context.Context, task Task) error
}

var _ Submitter = (*TaskRunner)(nil)
