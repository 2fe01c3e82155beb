package mocks

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/adscript-api/internal/domain"
	"github.com/phrazzld/adscript-api/internal/store"
)

// MockUserStore implements store.UserStore for testing. Without function
// fields it behaves as an in-memory store keyed by lowercased email.
type MockUserStore struct {
	CreateFn     func(ctx context.Context, user *domain.User) error
	GetByEmailFn func(ctx context.Context, email string) (*domain.User, error)
	GetByIDFn    func(ctx context.Context, id uuid.UUID) (*domain.User, error)

	mu    sync.Mutex
	Users map[string]*domain.User
}

// NewMockUserStore creates a new mock store with initialized defaults
func NewMockUserStore() *MockUserStore {
	return &MockUserStore{Users: make(map[string]*domain.User)}
}

var _ store.UserStore = (*MockUserStore)(nil)

// Create implements the UserStore interface. The plaintext password is kept
// as the hash so tests can pair the store with MockPasswordVerifier.
func (m *MockUserStore) Create(ctx context.Context, user *domain.User) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, user)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, exists := m.Users[key]; exists {
		return store.ErrEmailExists
	}
	if user.HashedPassword == "" {
		user.HashedPassword = user.Password
	}
	user.Password = ""
	m.Users[key] = user
	return nil
}

// GetByEmail implements the UserStore interface
func (m *MockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.GetByEmailFn != nil {
		return m.GetByEmailFn(ctx, email)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.Users[strings.ToLower(email)]
	if !exists {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

// GetByID implements the UserStore interface
func (m *MockUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.Users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, store.ErrUserNotFound
}

// WithTx implements the UserStore interface
func (m *MockUserStore) WithTx(tx *sql.Tx) store.UserStore {
	return m
}
