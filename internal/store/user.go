package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/adscript-api/internal/domain"
)

// UserStore persists the accounts that own API tokens.
type UserStore interface {
	// Create hashes user.Password into user.HashedPassword, clears the
	// plaintext and inserts the row. Returns ErrEmailExists on a duplicate
	// email, compared case-insensitively.
	Create(ctx context.Context, user *domain.User) error

	// GetByID returns ErrUserNotFound for an unknown id.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetByEmail looks the user up by email and returns ErrUserNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// WithTx returns a copy of the store bound to tx.
	WithTx(tx *sql.Tx) UserStore
}
