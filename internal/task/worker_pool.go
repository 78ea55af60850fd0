package task

import (
	"context"
	"log/slog"
	"sync"
)

// WorkerPool runs a fixed number of workers over one TaskQueue. Each worker
// takes one task at a time and hands it to the process function.
type WorkerPool struct {
	queue       *TaskQueue
	workerCount int
	process     func(ctx context.Context, task Task, workerID int)
	wg          sync.WaitGroup
	logger      *slog.Logger
}

// NewWorkerPool creates a pool of workerCount workers for queue.
func NewWorkerPool(
	queue *TaskQueue,
	workerCount int,
	process func(ctx context.Context, task Task, workerID int),
	logger *slog.Logger,
) *WorkerPool {
	if workerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"queue", queue.Name(),
			"specified_count", workerCount,
			"default_count", 1)
		workerCount = 1
	}
	return &WorkerPool{
		queue:       queue,
		workerCount: workerCount,
		process:     process,
		logger:      logger.With("queue", queue.Name()),
	}
}

// Start launches the workers. They stop when ctx is cancelled or the queue
// is closed.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("worker pool started", "worker_count", p.workerCount)
}

// Wait blocks until every worker has returned.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)
	tasks := p.queue.GetChannel()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("stopping worker", "worker_id", id)
			return

		case task, ok := <-tasks:
			if !ok {
				p.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}
			p.process(ctx, task, id)
		}
	}
}
