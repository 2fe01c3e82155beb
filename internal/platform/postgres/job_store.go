package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/adscript-api/internal/job"
	"github.com/phrazzld/adscript-api/internal/platform/logger"
	"github.com/phrazzld/adscript-api/internal/store"
)

const jobColumns = `id, type, payload, status, attempts, max_attempts, run_after,
	last_error, created_at, updated_at`

// PostgresJobStore implements the job.Store interface using PostgreSQL
type PostgresJobStore struct {
	db     store.DBTX
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresJobStore creates a new PostgresJobStore
func NewPostgresJobStore(db store.DBTX, logger *slog.Logger) *PostgresJobStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresJobStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_store")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ensure PostgresJobStore implements job.Store interface
var _ job.Store = (*PostgresJobStore)(nil)

// SaveJob persists a job record to the database
func (s *PostgresJobStore) SaveJob(ctx context.Context, rec *job.Record) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.RunAfter.IsZero() {
		rec.RunAfter = now
	}
	if rec.Status == "" {
		rec.Status = job.StatusPending
	}
	payload := rec.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, payload, status, attempts, max_attempts, run_after, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		rec.ID,
		rec.Type,
		payload,
		string(rec.Status),
		rec.Attempts,
		rec.MaxAttempts,
		rec.RunAfter,
		nullIfEmpty(rec.LastError),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to save job",
			"job_id", rec.ID,
			"job_type", rec.Type,
			"error", err)
		return fmt.Errorf("failed to save job to database: %w", MapError(err))
	}

	return nil
}

// StartAttempt moves a pending job to processing and counts the attempt.
// Jobs that are not pending are reported as store.ErrJobNotFound so a
// duplicate queue entry never runs twice.
func (s *PostgresJobStore) StartAttempt(ctx context.Context, id uuid.UUID) (*job.Record, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	row := s.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = $1, attempts = attempts + 1, updated_at = $2
		WHERE id = $3 AND status = $4
		RETURNING `+jobColumns,
		string(job.StatusProcessing),
		s.now(),
		id,
		string(job.StatusPending),
	)

	rec, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		log.Error("failed to start job attempt",
			"job_id", id,
			"error", err)
		return nil, fmt.Errorf("failed to start job attempt: %w", MapError(err))
	}

	return rec, nil
}

// UpdateJobStatus updates the status of a job in the database
func (s *PostgresJobStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status job.Status, lastError string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, last_error = $2, updated_at = $3
		WHERE id = $4
	`,
		string(status),
		nullIfEmpty(lastError),
		s.now(),
		id,
	)
	if err != nil {
		log.Error("failed to update job status",
			"job_id", id,
			"status", status,
			"error", err)
		return fmt.Errorf("failed to update job status: %w", MapError(err))
	}

	return CheckRowsAffected(result, store.ErrJobNotFound)
}

// RescheduleJob returns a job to pending with a new earliest run time
func (s *PostgresJobStore) RescheduleJob(ctx context.Context, id uuid.UUID, runAfter time.Time, lastError string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, run_after = $2, last_error = $3, updated_at = $4
		WHERE id = $5
	`,
		string(job.StatusPending),
		runAfter.UTC(),
		nullIfEmpty(lastError),
		s.now(),
		id,
	)
	if err != nil {
		log.Error("failed to reschedule job",
			"job_id", id,
			"error", err)
		return fmt.Errorf("failed to reschedule job: %w", MapError(err))
	}

	return CheckRowsAffected(result, store.ErrJobNotFound)
}

// GetJobsByStatus retrieves jobs in a status, optionally only those not
// updated within olderThan
func (s *PostgresJobStore) GetJobsByStatus(ctx context.Context, status job.Status, olderThan time.Duration) ([]*job.Record, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = $1`
	args := []interface{}{string(status)}
	if olderThan > 0 {
		query += ` AND updated_at < $2`
		args = append(args, s.now().Add(-olderThan))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query jobs by status",
			"status", status,
			"error", err)
		return nil, fmt.Errorf("failed to query jobs by status: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var records []*job.Record
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			log.Error("failed to scan job row",
				"status", status,
				"error", err)
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		log.Error("error iterating job rows",
			"status", status,
			"error", err)
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}

	return records, nil
}

// WithTx returns a new job store that uses the provided transaction
func (s *PostgresJobStore) WithTx(tx *sql.Tx) job.Store {
	return &PostgresJobStore{
		db:     tx,
		logger: s.logger,
		now:    s.now,
	}
}

func scanJob(row rowScanner) (*job.Record, error) {
	var rec job.Record
	var status string
	var lastError sql.NullString

	err := row.Scan(
		&rec.ID,
		&rec.Type,
		&rec.Payload,
		&status,
		&rec.Attempts,
		&rec.MaxAttempts,
		&rec.RunAfter,
		&lastError,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = job.Status(status)
	rec.LastError = lastError.String
	return &rec, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
