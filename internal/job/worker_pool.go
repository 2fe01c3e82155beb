package job

import (
	"context"
	"log/slog"
	"sync"
)

// HandlerFunc processes one job taken from the queue.
type HandlerFunc func(ctx context.Context, job Job, workerID int)

// WorkerPool manages a pool of worker goroutines that process jobs
// from a queue. It handles graceful shutdown and worker lifecycle.
type WorkerPool struct {
	queue       QueueReader
	workerCount int

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	logger *slog.Logger
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start.
	// If zero or negative, defaults to 1.
	WorkerCount int
}

// NewWorkerPool creates a new worker pool with the specified configuration.
func NewWorkerPool(queue QueueReader, config WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "worker_pool")

	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queue:       queue,
		workerCount: workerCount,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// Start launches the workers. Each dequeued job is passed to handler.
func (p *WorkerPool) Start(handler HandlerFunc) {
	p.logger.Info("starting worker pool", "worker_count", p.workerCount)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i, handler)
	}
}

// Stop signals workers to exit and waits for in-flight jobs to finish.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *WorkerPool) worker(id int, handler HandlerFunc) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("stopping worker", "worker_id", id)
			return

		case job, ok := <-p.queue.Channel():
			if !ok {
				p.logger.Debug("job channel closed, stopping worker", "worker_id", id)
				return
			}
			p.run(job, id, handler)
		}
	}
}

// run shields the worker from a panicking job.
func (p *WorkerPool) run(job Job, workerID int, handler HandlerFunc) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job handler panicked",
				"worker_id", workerID,
				"job_id", job.ID(),
				"job_type", job.Type(),
				"panic", r)
		}
	}()

	// In-flight jobs are not cancelled by Stop
	handler(context.Background(), job, workerID)
}
