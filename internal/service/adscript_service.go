package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/adscript-api/internal/domain"
	"github.com/phrazzld/adscript-api/internal/events"
	"github.com/phrazzld/adscript-api/internal/platform/logger"
	"github.com/phrazzld/adscript-api/internal/store"
)

// Listing page bounds. MaxPage keeps the row offset within 32 bits.
const (
	DefaultPerPage = 15
	MaxPerPage     = 100
	MaxPage        = math.MaxInt32 / MaxPerPage
)

// AdScriptServiceError is a custom error type for ad script service errors.
type AdScriptServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for AdScriptServiceError.
func (e *AdScriptServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ad script service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("ad script service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *AdScriptServiceError) Unwrap() error {
	return e.Err
}

// NewAdScriptServiceError creates a new AdScriptServiceError.
func NewAdScriptServiceError(operation, message string, err error) *AdScriptServiceError {
	return &AdScriptServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// ListFilter selects a page of tasks.
type ListFilter struct {
	Status  domain.TaskStatus
	Search  string
	Page    int
	PerPage int
}

// Page is one page of a task listing.
type Page struct {
	Items    []*domain.AdScriptTask
	Total    int64
	Page     int
	PerPage  int
	LastPage int
}

// AdScriptService owns the ad script task lifecycle.
type AdScriptService interface {
	// Create validates and stores a pending task, then announces it so it gets dispatched.
	Create(ctx context.Context, userID uuid.UUID, referenceScript, outcomeDescription string) (*domain.AdScriptTask, error)

	// RecordResult completes a task with the workflow's output.
	RecordResult(ctx context.Context, id int64, newScript, analysis string) (*domain.AdScriptTask, error)

	// MarkFailed records a delivery failure. Completed tasks are left untouched.
	MarkFailed(ctx context.Context, id int64, message string) (*domain.AdScriptTask, error)

	// Get retrieves a task by its ID
	Get(ctx context.Context, id int64) (*domain.AdScriptTask, error)

	// List returns a page of tasks, newest first
	List(ctx context.Context, filter ListFilter) (*Page, error)

	// Stats returns per-status task counts
	Stats(ctx context.Context) (domain.TaskStats, error)

	// Ping checks that task storage is reachable
	Ping(ctx context.Context) error
}

type adScriptServiceImpl struct {
	tasks   store.AdScriptTaskStore
	emitter events.EventEmitter
	logger  *slog.Logger
	now     func() time.Time
}

// NewAdScriptService creates a new AdScriptService.
// It returns an error if any of the required dependencies are nil.
func NewAdScriptService(
	tasks store.AdScriptTaskStore,
	emitter events.EventEmitter,
	logger *slog.Logger,
) (AdScriptService, error) {
	if tasks == nil {
		return nil, fmt.Errorf("%w: task store cannot be nil", domain.ErrValidation)
	}
	if emitter == nil {
		return nil, fmt.Errorf("%w: event emitter cannot be nil", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &adScriptServiceImpl{
		tasks:   tasks,
		emitter: emitter,
		logger:  logger.With(slog.String("component", "ad_script_service")),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create implements AdScriptService.Create
func (s *adScriptServiceImpl) Create(
	ctx context.Context,
	userID uuid.UUID,
	referenceScript, outcomeDescription string,
) (*domain.AdScriptTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := domain.NewAdScriptTask(referenceScript, outcomeDescription)
	if err != nil {
		log.Debug("ad script task rejected", slog.String("error", err.Error()))
		return nil, err
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		log.Error("failed to store ad script task", slog.String("error", err.Error()))
		return nil, NewAdScriptServiceError("create", "failed to store task", err)
	}

	log = log.With(slog.Int64("task_id", task.ID))
	log.Info("ad script task created", slog.String("user_id", userID.String()))

	// The task is already committed; a failed announcement leaves it pending
	// for the job runner's recovery and must not fail the request.
	event, err := events.NewAdScriptTaskCreatedEvent(task)
	if err != nil {
		log.Error("failed to build task created event", slog.String("error", err.Error()))
		return task, nil
	}
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		log.Error("failed to emit task created event", slog.String("error", err.Error()))
	}

	return task, nil
}

// RecordResult implements AdScriptService.RecordResult
func (s *adScriptServiceImpl) RecordResult(
	ctx context.Context,
	id int64,
	newScript, analysis string,
) (*domain.AdScriptTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.Int64("task_id", id))

	task, err := s.tasks.Update(ctx, id, func(task *domain.AdScriptTask) error {
		return task.MarkCompleted(newScript, analysis, s.now())
	})
	if err != nil {
		return nil, s.mapLifecycleError(log, "record_result", err)
	}

	log.Info("ad script task completed")
	return task, nil
}

// MarkFailed implements AdScriptService.MarkFailed
func (s *adScriptServiceImpl) MarkFailed(ctx context.Context, id int64, message string) (*domain.AdScriptTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.Int64("task_id", id))

	task, err := s.tasks.Update(ctx, id, func(task *domain.AdScriptTask) error {
		return task.MarkFailed(message, s.now())
	})
	if err != nil {
		return nil, s.mapLifecycleError(log, "mark_failed", err)
	}

	log.Warn("ad script task marked failed", slog.String("error_details", message))
	return task, nil
}

// Get implements AdScriptService.Get
func (s *adScriptServiceImpl) Get(ctx context.Context, id int64) (*domain.AdScriptTask, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrTaskNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get ad script task",
			slog.Int64("task_id", id),
			slog.String("error", err.Error()))
		return nil, NewAdScriptServiceError("get", "failed to get task", err)
	}
	return task, nil
}

// List implements AdScriptService.List
func (s *adScriptServiceImpl) List(ctx context.Context, filter ListFilter) (*Page, error) {
	page, perPage := normalizePaging(filter.Page, filter.PerPage)

	items, total, err := s.tasks.List(ctx, store.AdScriptTaskFilter{
		Status: filter.Status,
		Search: filter.Search,
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	})
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list ad script tasks",
			slog.String("error", err.Error()))
		return nil, NewAdScriptServiceError("list", "failed to list tasks", err)
	}

	return &Page{
		Items:    items,
		Total:    total,
		Page:     page,
		PerPage:  perPage,
		LastPage: lastPage(total, perPage),
	}, nil
}

// Stats implements AdScriptService.Stats
func (s *adScriptServiceImpl) Stats(ctx context.Context) (domain.TaskStats, error) {
	stats, err := s.tasks.Stats(ctx)
	if err != nil {
		return domain.TaskStats{}, NewAdScriptServiceError("stats", "failed to count tasks", err)
	}
	return stats, nil
}

// Ping implements AdScriptService.Ping
func (s *adScriptServiceImpl) Ping(ctx context.Context) error {
	return s.tasks.Ping(ctx)
}

func (s *adScriptServiceImpl) mapLifecycleError(log *slog.Logger, op string, err error) error {
	switch {
	case store.IsNotFoundError(err):
		return ErrTaskNotFound
	case errors.Is(err, domain.ErrTaskAlreadyCompleted):
		log.Info("task already completed, change rejected", slog.String("operation", op))
		return ErrTaskAlreadyCompleted
	case errors.Is(err, domain.ErrValidation):
		return err
	default:
		log.Error("failed to update ad script task",
			slog.String("operation", op),
			slog.String("error", err.Error()))
		return NewAdScriptServiceError(op, "failed to update task", err)
	}
}

func normalizePaging(page, perPage int) (int, int) {
	switch {
	case page < 1:
		page = 1
	case page > MaxPage:
		page = MaxPage
	}
	switch {
	case perPage < 1:
		perPage = DefaultPerPage
	case perPage > MaxPerPage:
		perPage = MaxPerPage
	}
	return page, perPage
}

func lastPage(total int64, perPage int) int {
	if total <= 0 {
		return 1
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}
