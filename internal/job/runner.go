package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/adscript-api/internal/platform/logger"
	"github.com/phrazzld/adscript-api/internal/store"
)

// RunnerConfig holds configuration for the job runner
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process jobs
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory job queue
	QueueSize int

	// MaxAttempts is the total number of attempts a job gets, including the first
	MaxAttempts int

	// RetryDelay is the fixed wait between a failed attempt and the next one
	RetryDelay time.Duration

	// JobTimeout bounds a single attempt. Zero means no runner-imposed deadline.
	JobTimeout time.Duration

	// StuckJobAge defines how long a job can be in processing state
	// before it's considered stuck and reset
	StuckJobAge time.Duration

	// StuckJobCheckInterval defines how often to sweep for stuck jobs and
	// for pending jobs that fell out of the queue.
	// If zero, defaults to 5 minutes.
	StuckJobCheckInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:           2,
		QueueSize:             100,
		MaxAttempts:           3,
		RetryDelay:            5 * time.Second,
		StuckJobAge:           30 * time.Minute,
		StuckJobCheckInterval: 5 * time.Minute,
	}
}

// Runner persists, schedules and retries background jobs.
type Runner struct {
	store  Store
	queue  *Queue
	pool   *WorkerPool
	config RunnerConfig
	logger *slog.Logger

	factoriesMu sync.RWMutex
	factories   map[string]Factory

	timersMu sync.Mutex
	timers   map[uuid.UUID]*time.Timer

	// queued holds the ids of jobs sitting in the queue, so that the pending
	// sweep and a retry timer never put the same job in twice
	queuedMu sync.Mutex
	queued   map[uuid.UUID]struct{}

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopOnce   sync.Once

	errHandler func(job Job, err error)
	now        func() time.Time
}

// NewRunner creates a new Runner
func NewRunner(jobStore Store, config RunnerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "job_runner")

	if config.StuckJobCheckInterval == 0 {
		config.StuckJobCheckInterval = 5 * time.Minute
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	queue := NewQueue(config.QueueSize, logger)

	r := &Runner{
		store:      jobStore,
		queue:      queue,
		pool:       NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: config.WorkerCount}, logger),
		config:     config,
		logger:     logger,
		factories:  make(map[string]Factory),
		timers:     make(map[uuid.UUID]*time.Timer),
		queued:     make(map[uuid.UUID]struct{}),
		ctx:        ctx,
		cancelFunc: cancel,
		now:        func() time.Time { return time.Now().UTC() },
	}
	r.errHandler = func(job Job, err error) {
		logger.Error("job failed permanently",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"error", err)
	}
	return r
}

// SetErrorHandler sets the function called when a job exhausts its attempts
func (r *Runner) SetErrorHandler(handler func(job Job, err error)) {
	r.errHandler = handler
}

// RegisterFactory makes jobs of f.Type() recoverable from their records
func (r *Runner) RegisterFactory(f Factory) {
	r.factoriesMu.Lock()
	defer r.factoriesMu.Unlock()
	r.factories[f.Type()] = f
}

// Submit persists a new job and queues it for execution. A job that was saved
// but could not be queued stays pending and is picked up by the pending sweep.
func (r *Runner) Submit(ctx context.Context, job Job) error {
	now := r.now()
	rec := &Record{
		ID:          job.ID(),
		Type:        job.Type(),
		Payload:     job.Payload(),
		Status:      StatusPending,
		MaxAttempts: r.config.MaxAttempts,
		RunAfter:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := r.store.SaveJob(ctx, rec); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	if err := r.tryEnqueue(job); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	return nil
}

// Start recovers unfinished jobs, then starts the workers and the monitor
func (r *Runner) Start() error {
	if err := r.Recover(r.ctx); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	r.pool.Start(r.process)

	r.wg.Add(1)
	go r.monitor()

	return nil
}

// Stop cancels pending retries, waits for in-flight jobs and closes the queue.
// Jobs still pending in the store are resumed by the next Start.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.cancelFunc()
		r.wg.Wait()

		r.timersMu.Lock()
		for id, t := range r.timers {
			t.Stop()
			delete(r.timers, id)
		}
		r.timersMu.Unlock()

		r.pool.Stop()
		r.queue.Close()
	})
}

// Recover re-queues jobs left pending by a previous process and resets jobs
// that were interrupted while processing.
func (r *Runner) Recover(ctx context.Context) error {
	pending, err := r.store.GetJobsByStatus(ctx, StatusPending, 0)
	if err != nil {
		return fmt.Errorf("failed to get pending jobs: %w", err)
	}

	processing, err := r.store.GetJobsByStatus(ctx, StatusProcessing, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing jobs: %w", err)
	}

	r.logger.Info("recovering unfinished jobs",
		"pending_count", len(pending),
		"processing_count", len(processing))

	for _, rec := range processing {
		if err := r.store.UpdateJobStatus(ctx, rec.ID, StatusPending, "reset after recovery"); err != nil {
			r.logger.Error("failed to reset processing job status",
				"job_id", rec.ID,
				"job_type", rec.Type,
				"error", err)
			continue
		}
		pending = append(pending, rec)
	}

	now := r.now()
	for _, rec := range pending {
		job, ok := r.rebuild(ctx, rec)
		if !ok {
			continue
		}
		if delay := rec.RunAfter.Sub(now); delay > 0 {
			r.scheduleRetry(job, delay)
			continue
		}
		r.enqueue(job)
	}

	return nil
}

// process runs one attempt of job and records the outcome
func (r *Runner) process(ctx context.Context, job Job, workerID int) {
	log := r.logger.With(
		"job_id", job.ID(),
		"job_type", job.Type(),
		"worker_id", workerID,
	)
	ctx = logger.WithLogger(ctx, log)

	rec, err := r.store.StartAttempt(ctx, job.ID())
	r.markDequeued(job.ID())
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			log.Debug("job is no longer pending, skipping")
			return
		}
		log.Error("failed to mark job processing", "error", err)
		return
	}

	log.Info("processing job",
		"attempt", rec.Attempts,
		"max_attempts", rec.MaxAttempts)

	execCtx := ctx
	if r.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, r.config.JobTimeout)
		defer cancel()
	}

	execErr := job.Execute(execCtx)
	if execErr == nil {
		log.Info("job completed successfully")
		if err := r.store.UpdateJobStatus(ctx, job.ID(), StatusCompleted, ""); err != nil {
			log.Error("failed to update job status to completed", "error", err)
		}
		return
	}

	if rec.Attempts < rec.MaxAttempts {
		runAfter := r.now().Add(r.config.RetryDelay)
		log.Warn("job attempt failed, retry scheduled",
			"attempt", rec.Attempts,
			"max_attempts", rec.MaxAttempts,
			"retry_in", r.config.RetryDelay.String(),
			"error", execErr)
		if err := r.store.RescheduleJob(ctx, job.ID(), runAfter, execErr.Error()); err != nil {
			log.Error("failed to reschedule job", "error", err)
			return
		}
		r.scheduleRetry(job, r.config.RetryDelay)
		return
	}

	log.Error("job attempts exhausted",
		"attempt", rec.Attempts,
		"max_attempts", rec.MaxAttempts,
		"error", execErr)
	if err := r.store.UpdateJobStatus(ctx, job.ID(), StatusFailed, execErr.Error()); err != nil {
		log.Error("failed to update job status to failed", "error", err)
	}
	r.errHandler(job, execErr)
}

// scheduleRetry queues job after delay unless the runner is stopping
func (r *Runner) scheduleRetry(job Job, delay time.Duration) {
	if r.ctx.Err() != nil {
		return
	}
	if delay <= 0 {
		r.enqueue(job)
		return
	}

	r.timersMu.Lock()
	defer r.timersMu.Unlock()

	id := job.ID()
	if existing, ok := r.timers[id]; ok {
		existing.Stop()
	}
	r.timers[id] = time.AfterFunc(delay, func() {
		r.timersMu.Lock()
		delete(r.timers, id)
		r.timersMu.Unlock()

		if r.ctx.Err() != nil {
			return
		}
		r.enqueue(job)
	})
}

func (r *Runner) enqueue(job Job) {
	if err := r.tryEnqueue(job); err != nil {
		r.logger.Error("failed to enqueue job, it stays pending until the next sweep",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"error", err)
	}
}

// tryEnqueue puts job on the queue unless it is already there
func (r *Runner) tryEnqueue(job Job) error {
	r.queuedMu.Lock()
	defer r.queuedMu.Unlock()

	id := job.ID()
	if _, ok := r.queued[id]; ok {
		return nil
	}
	if err := r.queue.Enqueue(job); err != nil {
		return err
	}
	r.queued[id] = struct{}{}
	return nil
}

func (r *Runner) markDequeued(id uuid.UUID) {
	r.queuedMu.Lock()
	delete(r.queued, id)
	r.queuedMu.Unlock()
}

// isScheduled reports whether job id is queued or waiting on a retry timer
func (r *Runner) isScheduled(id uuid.UUID) bool {
	r.queuedMu.Lock()
	_, queued := r.queued[id]
	r.queuedMu.Unlock()
	if queued {
		return true
	}

	r.timersMu.Lock()
	_, waiting := r.timers[id]
	r.timersMu.Unlock()
	return waiting
}

// rebuild turns a stored record back into an executable job. Records that
// cannot be rebuilt are marked failed.
func (r *Runner) rebuild(ctx context.Context, rec *Record) (Job, bool) {
	r.factoriesMu.RLock()
	factory, ok := r.factories[rec.Type]
	r.factoriesMu.RUnlock()

	var (
		job Job
		err error
	)
	if !ok {
		err = fmt.Errorf("no factory registered for job type %q", rec.Type)
	} else {
		job, err = factory.FromRecord(rec)
	}

	if err != nil {
		r.logger.Error("failed to rebuild job from record",
			"job_id", rec.ID,
			"job_type", rec.Type,
			"error", err)
		if updateErr := r.store.UpdateJobStatus(ctx, rec.ID, StatusFailed, err.Error()); updateErr != nil {
			r.logger.Error("failed to mark unrecoverable job failed",
				"job_id", rec.ID,
				"error", updateErr)
		}
		return nil, false
	}

	return job, true
}

// monitor periodically requeues due pending jobs that are neither queued nor
// waiting on a retry timer, and resets jobs that have been processing for too long
func (r *Runner) monitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckJobCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			r.requeueOrphanedJobs(r.ctx)
			if r.config.StuckJobAge > 0 {
				r.resetStuckJobs(r.ctx)
			}
		}
	}
}

// requeueOrphanedJobs enqueues pending jobs whose run time has passed but
// which the runner is not tracking, e.g. after the queue was full.
func (r *Runner) requeueOrphanedJobs(ctx context.Context) {
	pending, err := r.store.GetJobsByStatus(ctx, StatusPending, 0)
	if err != nil {
		r.logger.Error("failed to check for orphaned pending jobs", "error", err)
		return
	}

	now := r.now()
	for _, rec := range pending {
		if rec.RunAfter.After(now) || r.isScheduled(rec.ID) {
			continue
		}
		job, ok := r.rebuild(ctx, rec)
		if !ok {
			continue
		}
		r.logger.Info("requeueing orphaned pending job",
			"job_id", rec.ID,
			"job_type", rec.Type)
		r.enqueue(job)
	}
}

func (r *Runner) resetStuckJobs(ctx context.Context) {
	stuck, err := r.store.GetJobsByStatus(ctx, StatusProcessing, r.config.StuckJobAge)
	if err != nil {
		r.logger.Error("failed to check for stuck jobs", "error", err)
		return
	}
	if len(stuck) == 0 {
		return
	}

	r.logger.Info("found stuck jobs", "count", len(stuck))

	for _, rec := range stuck {
		if err := r.store.UpdateJobStatus(ctx, rec.ID, StatusPending,
			"reset after being stuck in processing state"); err != nil {
			r.logger.Error("failed to reset stuck job status",
				"job_id", rec.ID,
				"job_type", rec.Type,
				"error", err)
			continue
		}

		if job, ok := r.rebuild(ctx, rec); ok {
			r.enqueue(job)
		}
	}
}
