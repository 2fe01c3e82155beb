package job

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a job record.
type Status string

// Possible job status values
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job represents a unit of background work to be processed.
type Job interface {
	// ID returns the job's unique identifier
	ID() uuid.UUID

	// Type returns the job type identifier used to find its Factory
	Type() string

	// Payload returns the job data persisted alongside the record
	Payload() []byte

	// Execute runs the job logic. A non-nil error counts as a failed attempt.
	Execute(ctx context.Context) error
}

// Record is the persisted state of a job.
type Record struct {
	ID          uuid.UUID
	Type        string
	Payload     []byte
	Status      Status
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Factory rebuilds jobs of one type from their persisted records.
type Factory interface {
	// Type returns the job type this factory builds
	Type() string

	// FromRecord reconstructs an executable job from a stored record
	FromRecord(rec *Record) (Job, error)
}

// QueueReader provides read-only access to queued jobs.
type QueueReader interface {
	// Channel returns a read-only channel for consuming jobs
	Channel() <-chan Job
}

// QueueWriter provides write access to the job queue.
type QueueWriter interface {
	// Enqueue adds a job to the queue. Returns ErrQueueFull or ErrQueueClosed.
	Enqueue(job Job) error

	// Close prevents further submission
	Close()
}

// Store defines the interface for persisting job records.
type Store interface {
	// SaveJob inserts a new record
	SaveJob(ctx context.Context, rec *Record) error

	// StartAttempt marks the job processing, increments its attempt count and
	// returns the updated record. Returns store.ErrJobNotFound if absent.
	StartAttempt(ctx context.Context, id uuid.UUID) (*Record, error)

	// UpdateJobStatus sets the status and last error of a job
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status Status, lastError string) error

	// RescheduleJob returns a job to pending, eligible again at runAfter
	RescheduleJob(ctx context.Context, id uuid.UUID, runAfter time.Time, lastError string) error

	// GetJobsByStatus lists jobs in status. A positive olderThan only returns
	// jobs whose last update is older than that.
	GetJobsByStatus(ctx context.Context, status Status, olderThan time.Duration) ([]*Record, error)

	// WithTx returns a Store bound to the provided transaction
	WithTx(tx *sql.Tx) Store
}
