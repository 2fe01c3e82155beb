package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/adscript-api/internal/job"
	"github.com/phrazzld/adscript-api/internal/store"
)

// MockJobStore is an in-memory job.Store.
type MockJobStore struct {
	mu      sync.Mutex
	Records map[uuid.UUID]*job.Record
}

// NewMockJobStore creates an empty in-memory job store
func NewMockJobStore() *MockJobStore {
	return &MockJobStore{Records: make(map[uuid.UUID]*job.Record)}
}

var _ job.Store = (*MockJobStore)(nil)

// SaveJob implements job.Store
func (m *MockJobStore) SaveJob(ctx context.Context, rec *job.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.Records[rec.ID] = &cp
	return nil
}

// StartAttempt implements job.Store
func (m *MockJobStore) StartAttempt(ctx context.Context, id uuid.UUID) (*job.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.Records[id]
	if !ok || rec.Status != job.StatusPending {
		return nil, store.ErrJobNotFound
	}
	rec.Status = job.StatusProcessing
	rec.Attempts++
	rec.UpdatedAt = time.Now()
	cp := *rec
	return &cp, nil
}

// UpdateJobStatus implements job.Store
func (m *MockJobStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status job.Status, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.Records[id]
	if !ok {
		return store.ErrJobNotFound
	}
	rec.Status = status
	rec.LastError = lastError
	rec.UpdatedAt = time.Now()
	return nil
}

// RescheduleJob implements job.Store
func (m *MockJobStore) RescheduleJob(ctx context.Context, id uuid.UUID, runAfter time.Time, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.Records[id]
	if !ok {
		return store.ErrJobNotFound
	}
	rec.Status = job.StatusPending
	rec.RunAfter = runAfter
	rec.LastError = lastError
	rec.UpdatedAt = time.Now()
	return nil
}

// GetJobsByStatus implements job.Store
func (m *MockJobStore) GetJobsByStatus(ctx context.Context, status job.Status, olderThan time.Duration) ([]*job.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*job.Record
	for _, rec := range m.Records {
		if rec.Status != status {
			continue
		}
		if olderThan > 0 && time.Since(rec.UpdatedAt) < olderThan {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// WithTx implements job.Store
func (m *MockJobStore) WithTx(tx *sql.Tx) job.Store {
	return m
}

// Get returns a copy of the record with id.
func (m *MockJobStore) Get(id uuid.UUID) (job.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.Records[id]
	if !ok {
		return job.Record{}, false
	}
	return *rec, true
}
