package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/adscript-api/internal/domain"
	"github.com/phrazzld/adscript-api/internal/platform/logger"
	"github.com/phrazzld/adscript-api/internal/store"
)

const adScriptTaskColumns = `id, reference_script, outcome_description, new_script, analysis,
	status, error_details, created_at, updated_at`

// PostgresAdScriptTaskStore implements the store.AdScriptTaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresAdScriptTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresAdScriptTaskStore creates a new PostgreSQL implementation of the
// AdScriptTaskStore interface. If logger is nil, a default logger will be used.
func NewPostgresAdScriptTaskStore(db store.DBTX, logger *slog.Logger) *PostgresAdScriptTaskStore {
	if db == nil {
		// ALLOW-PANIC: constructor misuse is a programming error
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresAdScriptTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "ad_script_task_store")),
	}
}

// Ensure PostgresAdScriptTaskStore implements store.AdScriptTaskStore interface
var _ store.AdScriptTaskStore = (*PostgresAdScriptTaskStore)(nil)

// Create implements store.AdScriptTaskStore.Create
func (s *PostgresAdScriptTaskStore) Create(ctx context.Context, task *domain.AdScriptTask) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO ad_script_tasks
			(reference_script, outcome_description, new_script, analysis, status, error_details, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		task.ReferenceScript,
		task.OutcomeDescription,
		nullString(task.NewScript),
		nullString(task.Analysis),
		string(task.Status),
		nullString(task.ErrorDetails),
		task.CreatedAt,
		task.UpdatedAt,
	).Scan(&task.ID)
	if err != nil {
		log.Error("failed to insert ad script task", slog.String("error", err.Error()))
		return store.NewStoreError("ad_script_task", "create", "failed to insert task", MapError(err))
	}

	log.Debug("ad script task created", slog.Int64("task_id", task.ID))
	return nil
}

// GetByID implements store.AdScriptTaskStore.GetByID
func (s *PostgresAdScriptTaskStore) GetByID(ctx context.Context, id int64) (*domain.AdScriptTask, error) {
	query := `SELECT ` + adScriptTaskColumns + ` FROM ad_script_tasks WHERE id = $1`
	return s.getOne(ctx, s.db, query, id)
}

// Update implements store.AdScriptTaskStore.Update
func (s *PostgresAdScriptTaskStore) Update(
	ctx context.Context,
	id int64,
	fn store.AdScriptTaskUpdateFn,
) (*domain.AdScriptTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var updated *domain.AdScriptTask
	err := store.RunInTransactionWith(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		query := `SELECT ` + adScriptTaskColumns + ` FROM ad_script_tasks WHERE id = $1 FOR UPDATE`
		task, err := s.getOne(ctx, tx, query, id)
		if err != nil {
			return err
		}

		if err := fn(task); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE ad_script_tasks
			SET new_script = $1, analysis = $2, status = $3, error_details = $4, updated_at = $5
			WHERE id = $6
		`,
			nullString(task.NewScript),
			nullString(task.Analysis),
			string(task.Status),
			nullString(task.ErrorDetails),
			task.UpdatedAt,
			id,
		)
		if err != nil {
			log.Error("failed to update ad script task",
				slog.Int64("task_id", id),
				slog.String("error", err.Error()))
			return store.NewStoreError("ad_script_task", "update", "failed to update task", MapError(err))
		}
		if err := CheckRowsAffected(result, store.ErrAdScriptTaskNotFound); err != nil {
			return err
		}

		updated = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug("ad script task updated",
		slog.Int64("task_id", id),
		slog.String("status", string(updated.Status)))
	return updated, nil
}

// List implements store.AdScriptTaskStore.List
func (s *PostgresAdScriptTaskStore) List(
	ctx context.Context,
	filter store.AdScriptTaskFilter,
) ([]*domain.AdScriptTask, int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	where, args := buildTaskFilter(filter)

	var total int64
	countQuery := `SELECT COUNT(*) FROM ad_script_tasks` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		log.Error("failed to count ad script tasks", slog.String("error", err.Error()))
		return nil, 0, store.NewStoreError("ad_script_task", "list", "failed to count tasks", MapError(err))
	}

	pageArgs := append(append([]interface{}{}, args...), filter.Limit, filter.Offset)
	pageQuery := fmt.Sprintf(
		`SELECT %s FROM ad_script_tasks%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		adScriptTaskColumns, where, len(args)+1, len(args)+2,
	)

	rows, err := s.db.QueryContext(ctx, pageQuery, pageArgs...)
	if err != nil {
		log.Error("failed to query ad script tasks", slog.String("error", err.Error()))
		return nil, 0, store.NewStoreError("ad_script_task", "list", "failed to query tasks", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]*domain.AdScriptTask, 0, filter.Limit)
	for rows.Next() {
		task, err := scanAdScriptTask(rows)
		if err != nil {
			log.Error("failed to scan ad script task row", slog.String("error", err.Error()))
			return nil, 0, store.NewStoreError("ad_script_task", "list", "failed to scan task", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating ad script task rows", slog.String("error", err.Error()))
		return nil, 0, store.NewStoreError("ad_script_task", "list", "failed to read tasks", err)
	}

	return tasks, total, nil
}

// Stats implements store.AdScriptTaskStore.Stats
func (s *PostgresAdScriptTaskStore) Stats(ctx context.Context) (domain.TaskStats, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var stats domain.TaskStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*)
		FROM ad_script_tasks
	`).Scan(&stats.Pending, &stats.Completed, &stats.Failed, &stats.Total)
	if err != nil {
		log.Error("failed to load ad script task stats", slog.String("error", err.Error()))
		return domain.TaskStats{}, store.NewStoreError("ad_script_task", "stats", "failed to count tasks", MapError(err))
	}

	return stats, nil
}

// Ping implements store.AdScriptTaskStore.Ping
func (s *PostgresAdScriptTaskStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// WithTx implements store.AdScriptTaskStore.WithTx
func (s *PostgresAdScriptTaskStore) WithTx(tx *sql.Tx) store.AdScriptTaskStore {
	return &PostgresAdScriptTaskStore{
		db:     tx,
		logger: s.logger,
	}
}

func (s *PostgresAdScriptTaskStore) getOne(
	ctx context.Context,
	db store.DBTX,
	query string,
	id int64,
) (*domain.AdScriptTask, error) {
	task, err := scanAdScriptTask(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAdScriptTaskNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get ad script task",
			slog.Int64("task_id", id),
			slog.String("error", err.Error()))
		return nil, store.NewStoreError("ad_script_task", "get", "failed to get task", MapError(err))
	}
	return task, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAdScriptTask(row rowScanner) (*domain.AdScriptTask, error) {
	var task domain.AdScriptTask
	var status string
	var newScript, analysis, errDetails sql.NullString

	err := row.Scan(
		&task.ID,
		&task.ReferenceScript,
		&task.OutcomeDescription,
		&newScript,
		&analysis,
		&status,
		&errDetails,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = domain.TaskStatus(status)
	task.NewScript = stringPtr(newScript)
	task.Analysis = stringPtr(analysis)
	task.ErrorDetails = stringPtr(errDetails)
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	return &task, nil
}

// buildTaskFilter renders the WHERE clause for a listing and its positional args.
func buildTaskFilter(filter store.AdScriptTaskFilter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			`(reference_script ILIKE $%[1]d ESCAPE '\' OR outcome_description ILIKE $%[1]d ESCAPE '\'`+
				` OR new_script ILIKE $%[1]d ESCAPE '\' OR analysis ILIKE $%[1]d ESCAPE '\')`,
			n,
		))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
