package store

import (
	"context"
	"database/sql"

	"github.com/phrazzld/adscript-api/internal/domain"
)

// AdScriptTaskFilter narrows a task listing.
type AdScriptTaskFilter struct {
	// Status filters by exact status when non-empty.
	Status domain.TaskStatus

	// Search matches case-insensitively against all four script fields when non-empty.
	Search string

	Limit  int
	Offset int
}

// AdScriptTaskUpdateFn mutates a locked task in place. Returning an error
// aborts the update and rolls back the transaction.
type AdScriptTaskUpdateFn func(task *domain.AdScriptTask) error

// AdScriptTaskStore defines the interface for ad script task persistence.
type AdScriptTaskStore interface {
	// Create inserts a new task and sets its ID and timestamps.
	Create(ctx context.Context, task *domain.AdScriptTask) error

	// GetByID retrieves a task by its ID.
	// Returns ErrAdScriptTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id int64) (*domain.AdScriptTask, error)

	// Update loads the task with a row lock, applies fn and writes the result,
	// all inside one transaction. Concurrent updates of the same task serialize.
	// Returns ErrAdScriptTaskNotFound if the task does not exist, or fn's error.
	Update(ctx context.Context, id int64, fn AdScriptTaskUpdateFn) (*domain.AdScriptTask, error)

	// List returns a page of tasks ordered newest first, plus the total match count.
	List(ctx context.Context, filter AdScriptTaskFilter) ([]*domain.AdScriptTask, int64, error)

	// Stats returns task counts per status.
	Stats(ctx context.Context) (domain.TaskStats, error)

	// Ping checks that the underlying database is reachable.
	Ping(ctx context.Context) error

	// WithTx returns a new AdScriptTaskStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) AdScriptTaskStore
}
