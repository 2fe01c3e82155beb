package job

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Common errors returned by the Queue
var (
	ErrQueueClosed = errors.New("job queue is closed")
	ErrQueueFull   = errors.New("job queue is full")
)

// Queue is a buffered job queue that satisfies both QueueReader and QueueWriter.
// It is safe to Enqueue and Close concurrently.
type Queue struct {
	jobs   chan Job
	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

// NewQueue creates a new job queue with the specified buffer size.
func NewQueue(size int, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		jobs:   make(chan Job, size),
		logger: logger.With("component", "job_queue"),
	}
}

// Enqueue adds a job to the queue without blocking.
func (q *Queue) Enqueue(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		q.logger.Debug("job enqueued",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"queue_len", len(q.jobs),
			"queue_cap", cap(q.jobs))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.jobs))
	}
}

// Close closes the queue. Queued jobs remain readable until drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.jobs)
		q.logger.Info("job queue closed")
	}
}

// Channel returns a read-only channel for consuming jobs.
func (q *Queue) Channel() <-chan Job {
	return q.jobs
}

// Len returns the number of jobs currently buffered.
func (q *Queue) Len() int {
	return len(q.jobs)
}

var (
	_ QueueReader = (*Queue)(nil)
	_ QueueWriter = (*Queue)(nil)
)
