package job

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/adscript-api/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryStore is an in-memory Store for runner tests.
type memoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Record

	SaveErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[uuid.UUID]*Record)}
}

func (s *memoryStore) SaveJob(ctx context.Context, rec *Record) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *memoryStore) StartAttempt(ctx context.Context, id uuid.UUID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.Status != StatusPending {
		return nil, store.ErrJobNotFound
	}
	rec.Status = StatusProcessing
	rec.Attempts++
	rec.UpdatedAt = time.Now()
	cp := *rec
	return &cp, nil
}

func (s *memoryStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status Status, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return store.ErrJobNotFound
	}
	rec.Status = status
	rec.LastError = lastError
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *memoryStore) RescheduleJob(ctx context.Context, id uuid.UUID, runAfter time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return store.ErrJobNotFound
	}
	rec.Status = StatusPending
	rec.RunAfter = runAfter
	rec.LastError = lastError
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *memoryStore) GetJobsByStatus(ctx context.Context, status Status, olderThan time.Duration) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for _, rec := range s.records {
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

func (s *memoryStore) WithTx(tx *sql.Tx) Store {
	return s
}

func (s *memoryStore) get(id uuid.UUID) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.records[id]
}

// testJob is a Job whose behavior is supplied by the test.
type testJob struct {
	id      uuid.UUID
	typ     string
	calls   atomic.Int32
	execute func(ctx context.Context, attempt int) error
}

func newTestJob(execute func(ctx context.Context, attempt int) error) *testJob {
	return &testJob{id: uuid.New(), typ: "test", execute: execute}
}

func (j *testJob) ID() uuid.UUID   { return j.id }
func (j *testJob) Type() string    { return j.typ }
func (j *testJob) Payload() []byte { return []byte(`{}`) }

func (j *testJob) Execute(ctx context.Context) error {
	n := int(j.calls.Add(1))
	if j.execute == nil {
		return nil
	}
	return j.execute(ctx, n)
}

// testFactory rebuilds testJobs by ID.
type testFactory struct {
	build func(rec *Record) (Job, error)
}

func (f testFactory) Type() string { return "test" }

func (f testFactory) FromRecord(rec *Record) (Job, error) {
	return f.build(rec)
}
