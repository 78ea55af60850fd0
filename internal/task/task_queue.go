package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// TaskQueue is a buffered queue of tasks consumed by one WorkerPool.
type TaskQueue struct {
	name   string
	tasks  chan Task
	logger *slog.Logger

	// mu is held for reading by senders and for writing by Close, so the
	// channel is never closed under a pending send.
	mu      sync.RWMutex
	closed  bool
	closing chan struct{}
	once    sync.Once
}

// NewTaskQueue creates a new task queue with the specified buffer size
func NewTaskQueue(name string, size int, logger *slog.Logger) *TaskQueue {
	if size <= 0 {
		size = 1
	}
	return &TaskQueue{
		name:   name,
		tasks:   make(chan Task, size),
		logger:  logger.With("queue", name),
		closing: make(chan struct{}),
	}
}

// Name returns the queue name.
func (q *TaskQueue) Name() string {
	return q.name
}

// Enqueue adds a task to the queue for processing.
// It never blocks: a full queue returns ErrQueueFull.
func (q *TaskQueue) Enqueue(task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		q.logEnqueued(task)
		return nil
	default:
		return fmt.Errorf("%w: queue %s capacity %d reached", ErrQueueFull, q.name, cap(q.tasks))
	}
}

// EnqueueWait adds a task to the queue, waiting for room until ctx is done
// or the queue is closed.
func (q *TaskQueue) EnqueueWait(ctx context.Context, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		q.logEnqueued(task)
		return nil
	case <-q.closing:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *TaskQueue) logEnqueued(task Task) {
	q.logger.Debug("task enqueued",
		"task_id", task.ID(),
		"task_type", task.Type(),
		"queue_len", len(q.tasks),
		"queue_cap", cap(q.tasks))
}

// Close closes the task queue, preventing further task submission.
// Senders blocked in EnqueueWait return ErrQueueClosed.
func (q *TaskQueue) Close() {
	q.once.Do(func() { close(q.closing) })

	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
		q.logger.Info("task queue closed")
	}
}

// Len returns the number of queued tasks.
func (q *TaskQueue) Len() int {
	return len(q.tasks)
}

// GetChannel returns a read-only channel for consuming tasks
func (q *TaskQueue) GetChannel() <-chan Task {
	return q.tasks
}
