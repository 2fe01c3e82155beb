package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/phrazzld/adscript-api/internal/domain"
	"github.com/phrazzld/adscript-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taskRowColumns = []string{
	"id", "reference_script", "outcome_description", "new_script", "analysis",
	"status", "error_details", "created_at", "updated_at",
}

func TestNewPostgresAdScriptTaskStore_NilDBPanics(t *testing.T) {
	assert.Panics(t, func() { NewPostgresAdScriptTaskStore(nil, nil) })
}

func TestPostgresAdScriptTaskStore_Create(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresAdScriptTaskStore(db, discardLogger())

	task, err := domain.NewAdScriptTask("Buy our shoes today!", "Make it sound more urgent")
	require.NoError(t, err)

	mock.ExpectQuery(`INSERT INTO ad_script_tasks`).
		WithArgs(task.ReferenceScript, task.OutcomeDescription, nil, nil, "pending", nil,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	require.NoError(t, s.Create(context.Background(), task))
	assert.Equal(t, int64(42), task.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAdScriptTaskStore_CreateError(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresAdScriptTaskStore(db, discardLogger())

	task, err := domain.NewAdScriptTask("Buy our shoes today!", "Make it sound more urgent")
	require.NoError(t, err)

	mock.ExpectQuery(`INSERT INTO ad_script_tasks`).WillReturnError(errors.New("connection reset"))

	err = s.Create(context.Background(), task)
	require.Error(t, err)
	var storeErr *store.StoreError
	assert.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "create", storeErr.Operation)
}

func TestPostgresAdScriptTaskStore_GetByID(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	updated := created.Add(90 * time.Second)

	t.Run("found", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresAdScriptTaskStore(db, discardLogger())

		mock.ExpectQuery(`SELECT .* FROM ad_script_tasks WHERE id = \$1`).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(taskRowColumns).
				AddRow(int64(7), "reference script", "outcome description", "new script text", "analysis text",
					"completed", nil, created, updated))

		task, err := s.GetByID(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, int64(7), task.ID)
		assert.Equal(t, domain.TaskStatusCompleted, task.Status)
		require.NotNil(t, task.NewScript)
		assert.Equal(t, "new script text", *task.NewScript)
		assert.Nil(t, task.ErrorDetails)

		d, ok := task.ProcessingTime()
		assert.True(t, ok)
		assert.Equal(t, 90*time.Second, d)
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresAdScriptTaskStore(db, discardLogger())

		mock.ExpectQuery(`SELECT .* FROM ad_script_tasks`).
			WithArgs(int64(99)).
			WillReturnError(sql.ErrNoRows)

		_, err := s.GetByID(context.Background(), 99)
		assert.ErrorIs(t, err, store.ErrAdScriptTaskNotFound)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestPostgresAdScriptTaskStore_Update(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("applies mutation under row lock", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresAdScriptTaskStore(db, discardLogger())

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows(taskRowColumns).
				AddRow(int64(5), "reference script", "outcome description", nil, nil,
					"pending", nil, created, created))
		mock.ExpectExec(`UPDATE ad_script_tasks`).
			WithArgs("rewritten script", "the analysis", "completed", nil, sqlmock.AnyArg(), int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		task, err := s.Update(context.Background(), 5, func(task *domain.AdScriptTask) error {
			return task.MarkCompleted("rewritten script", "the analysis", created.Add(time.Minute))
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, task.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mutation error rolls back", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresAdScriptTaskStore(db, discardLogger())

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows(taskRowColumns).
				AddRow(int64(5), "reference script", "outcome description", "done script", "done analysis",
					"completed", nil, created, created))
		mock.ExpectRollback()

		_, err := s.Update(context.Background(), 5, func(task *domain.AdScriptTask) error {
			return task.MarkFailed("late failure", created)
		})
		assert.ErrorIs(t, err, domain.ErrTaskAlreadyCompleted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing task rolls back", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresAdScriptTaskStore(db, discardLogger())

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).WithArgs(int64(8)).WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := s.Update(context.Background(), 8, func(task *domain.AdScriptTask) error {
			t.Fatal("mutation must not run for a missing task")
			return nil
		})
		assert.ErrorIs(t, err, store.ErrAdScriptTaskNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresAdScriptTaskStore_List(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresAdScriptTaskStore(db, discardLogger())
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM ad_script_tasks WHERE status = \$1 AND`).
		WithArgs("failed", `%50\%%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(21)))
	mock.ExpectQuery(`ORDER BY created_at DESC, id DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("failed", `%50\%%`, 15, 15).
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow(int64(3), "reference 50% off", "outcome description", nil, nil,
				"failed", "Connection error: refused", created, created))

	tasks, total, err := s.List(context.Background(), store.AdScriptTaskFilter{
		Status: domain.TaskStatusFailed,
		Search: "50%",
		Limit:  15,
		Offset: 15,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(21), total)
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].ErrorDetails)
	assert.Equal(t, "Connection error: refused", *tasks[0].ErrorDetails)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAdScriptTaskStore_Stats(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresAdScriptTaskStore(db, discardLogger())

	mock.ExpectQuery(`COUNT\(\*\) FILTER`).
		WillReturnRows(sqlmock.NewRows([]string{"pending", "completed", "failed", "total"}).
			AddRow(int64(2), int64(5), int64(1), int64(8)))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStats{Pending: 2, Completed: 5, Failed: 1, Total: 8}, stats)
}

func TestPostgresAdScriptTaskStore_Ping(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresAdScriptTaskStore(db, discardLogger())

	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	assert.NoError(t, s.Ping(context.Background()))

	mock.ExpectQuery(`SELECT 1`).WillReturnError(errors.New("down"))
	assert.Error(t, s.Ping(context.Background()))
}

func TestBuildTaskFilter(t *testing.T) {
	where, args := buildTaskFilter(store.AdScriptTaskFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = buildTaskFilter(store.AdScriptTaskFilter{Status: domain.TaskStatusPending})
	assert.Equal(t, " WHERE status = $1", where)
	assert.Equal(t, []interface{}{"pending"}, args)

	where, args = buildTaskFilter(store.AdScriptTaskFilter{Search: "  shoes "})
	assert.Contains(t, where, "reference_script ILIKE $1")
	assert.Contains(t, where, "analysis ILIKE $1")
	assert.Equal(t, []interface{}{"%shoes%"}, args)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%`, escapeLike("100%"))
	assert.Equal(t, `snake\_case`, escapeLike("snake_case"))
	assert.Equal(t, `back\\slash`, escapeLike(`back\slash`))
}
