package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/adscript-api/internal/job"
	"github.com/phrazzld/adscript-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jobRowColumns = []string{
	"id", "type", "payload", "status", "attempts", "max_attempts", "run_after",
	"last_error", "created_at", "updated_at",
}

func newTestJobStore(t *testing.T) (*PostgresJobStore, sqlmock.Sqlmock, time.Time) {
	t.Helper()
	db, mock := newMockDB(t)
	s := NewPostgresJobStore(db, discardLogger())
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, mock, now
}

func TestPostgresJobStore_SaveJob(t *testing.T) {
	s, mock, now := newTestJobStore(t)
	id := uuid.New()

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(id.String(), "ad_script_dispatch", []byte(`{"task_id":1}`), "pending", 0, 3,
			now, nil, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &job.Record{
		ID:          id,
		Type:        "ad_script_dispatch",
		Payload:     []byte(`{"task_id":1}`),
		MaxAttempts: 3,
	}
	require.NoError(t, s.SaveJob(context.Background(), rec))
	assert.Equal(t, job.StatusPending, rec.Status)
	assert.Equal(t, now, rec.RunAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_StartAttempt(t *testing.T) {
	t.Run("pending job", func(t *testing.T) {
		s, mock, now := newTestJobStore(t)
		id := uuid.New()

		mock.ExpectQuery(`UPDATE jobs\s+SET status = \$1, attempts = attempts \+ 1`).
			WithArgs("processing", now, id.String(), "pending").
			WillReturnRows(sqlmock.NewRows(jobRowColumns).
				AddRow(id.String(), "ad_script_dispatch", []byte(`{}`), "processing", 2, 3,
					now, "previous failure", now, now))

		rec, err := s.StartAttempt(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, id, rec.ID)
		assert.Equal(t, job.StatusProcessing, rec.Status)
		assert.Equal(t, 2, rec.Attempts)
		assert.Equal(t, "previous failure", rec.LastError)
	})

	t.Run("not pending", func(t *testing.T) {
		s, mock, _ := newTestJobStore(t)
		mock.ExpectQuery(`UPDATE jobs`).WillReturnError(sql.ErrNoRows)

		_, err := s.StartAttempt(context.Background(), uuid.New())
		assert.ErrorIs(t, err, store.ErrJobNotFound)
	})
}

func TestPostgresJobStore_UpdateJobStatus(t *testing.T) {
	s, mock, now := newTestJobStore(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE jobs\s+SET status = \$1, last_error = \$2`).
		WithArgs("failed", "N8N webhook returned status 500: boom", now, id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.UpdateJobStatus(context.Background(), id, job.StatusFailed,
		"N8N webhook returned status 500: boom"))

	mock.ExpectExec(`UPDATE jobs`).
		WithArgs("completed", nil, now, id.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.UpdateJobStatus(context.Background(), id, job.StatusCompleted, "")
	assert.ErrorIs(t, err, store.ErrJobNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_RescheduleJob(t *testing.T) {
	s, mock, now := newTestJobStore(t)
	id := uuid.New()
	runAfter := now.Add(5 * time.Second)

	mock.ExpectExec(`UPDATE jobs\s+SET status = \$1, run_after = \$2`).
		WithArgs("pending", runAfter, "Connection error: refused", now, id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.RescheduleJob(context.Background(), id, runAfter, "Connection error: refused"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_GetJobsByStatus(t *testing.T) {
	t.Run("with age filter", func(t *testing.T) {
		s, mock, now := newTestJobStore(t)
		id := uuid.New()

		mock.ExpectQuery(`FROM jobs WHERE status = \$1 AND updated_at < \$2 ORDER BY created_at ASC`).
			WithArgs("processing", now.Add(-30*time.Minute)).
			WillReturnRows(sqlmock.NewRows(jobRowColumns).
				AddRow(id.String(), "ad_script_dispatch", []byte(`{}`), "processing", 1, 3,
					now, nil, now, now))

		recs, err := s.GetJobsByStatus(context.Background(), job.StatusProcessing, 30*time.Minute)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, id, recs[0].ID)
		assert.Empty(t, recs[0].LastError)
	})

	t.Run("query error", func(t *testing.T) {
		s, mock, _ := newTestJobStore(t)
		mock.ExpectQuery(`FROM jobs WHERE status = \$1 ORDER BY`).
			WithArgs("pending").
			WillReturnError(errors.New("timeout"))

		_, err := s.GetJobsByStatus(context.Background(), job.StatusPending, 0)
		assert.Error(t, err)
	})
}
