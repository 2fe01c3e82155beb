package mocks

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"

	"github.com/phrazzld/adscript-api/internal/domain"
	"github.com/phrazzld/adscript-api/internal/store"
)

// MockAdScriptTaskStore implements store.AdScriptTaskStore for testing.
// Without function fields it behaves as an in-memory store that assigns
// sequential IDs and serializes updates.
type MockAdScriptTaskStore struct {
	CreateFn  func(ctx context.Context, task *domain.AdScriptTask) error
	GetByIDFn func(ctx context.Context, id int64) (*domain.AdScriptTask, error)
	ListFn    func(ctx context.Context, filter store.AdScriptTaskFilter) ([]*domain.AdScriptTask, int64, error)
	StatsFn   func(ctx context.Context) (domain.TaskStats, error)
	PingErr   error

	// UpdateErr, when set, is returned by Update before fn runs
	UpdateErr error

	mu     sync.Mutex
	nextID int64
	Tasks  map[int64]*domain.AdScriptTask
}

// NewMockAdScriptTaskStore creates an empty in-memory task store
func NewMockAdScriptTaskStore() *MockAdScriptTaskStore {
	return &MockAdScriptTaskStore{Tasks: make(map[int64]*domain.AdScriptTask)}
}

var _ store.AdScriptTaskStore = (*MockAdScriptTaskStore)(nil)

// Create implements store.AdScriptTaskStore
func (m *MockAdScriptTaskStore) Create(ctx context.Context, task *domain.AdScriptTask) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, task)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	task.ID = m.nextID
	cp := *task
	m.Tasks[task.ID] = &cp
	return nil
}

// Put stores task as-is, for seeding test fixtures
func (m *MockAdScriptTaskStore) Put(task *domain.AdScriptTask) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if task.ID > m.nextID {
		m.nextID = task.ID
	}
	cp := *task
	m.Tasks[task.ID] = &cp
}

// GetByID implements store.AdScriptTaskStore
func (m *MockAdScriptTaskStore) GetByID(ctx context.Context, id int64) (*domain.AdScriptTask, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.Tasks[id]
	if !ok {
		return nil, store.ErrAdScriptTaskNotFound
	}
	cp := *task
	return &cp, nil
}

// Update implements store.AdScriptTaskStore. The store lock is held while fn
// runs, mirroring the row lock of the real store.
func (m *MockAdScriptTaskStore) Update(
	ctx context.Context,
	id int64,
	fn store.AdScriptTaskUpdateFn,
) (*domain.AdScriptTask, error) {
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.Tasks[id]
	if !ok {
		return nil, store.ErrAdScriptTaskNotFound
	}

	working := *task
	if err := fn(&working); err != nil {
		return nil, err
	}
	m.Tasks[id] = &working

	cp := working
	return &cp, nil
}

// List implements store.AdScriptTaskStore
func (m *MockAdScriptTaskStore) List(
	ctx context.Context,
	filter store.AdScriptTaskFilter,
) ([]*domain.AdScriptTask, int64, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, filter)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var matched []*domain.AdScriptTask
	for _, task := range m.Tasks {
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if search != "" && !taskContains(task, search) {
			continue
		}
		cp := *task
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := filter.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}

// Stats implements store.AdScriptTaskStore
func (m *MockAdScriptTaskStore) Stats(ctx context.Context) (domain.TaskStats, error) {
	if m.StatsFn != nil {
		return m.StatsFn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var stats domain.TaskStats
	for _, task := range m.Tasks {
		switch task.Status {
		case domain.TaskStatusPending:
			stats.Pending++
		case domain.TaskStatusCompleted:
			stats.Completed++
		case domain.TaskStatusFailed:
			stats.Failed++
		}
		stats.Total++
	}
	return stats, nil
}

// Ping implements store.AdScriptTaskStore
func (m *MockAdScriptTaskStore) Ping(ctx context.Context) error {
	return m.PingErr
}

// WithTx implements store.AdScriptTaskStore
func (m *MockAdScriptTaskStore) WithTx(tx *sql.Tx) store.AdScriptTaskStore {
	return m
}

func taskContains(task *domain.AdScriptTask, needle string) bool {
	fields := []string{task.ReferenceScript, task.OutcomeDescription}
	if task.NewScript != nil {
		fields = append(fields, *task.NewScript)
	}
	if task.Analysis != nil {
		fields = append(fields, *task.Analysis)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
