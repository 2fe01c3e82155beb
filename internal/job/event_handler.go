package job

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/adscript-api/internal/events"
)

// Submitter accepts jobs for background execution.
type Submitter interface {
	Submit(ctx context.Context, job Job) error
}

// DispatchEventHandler submits a DispatchJob whenever a task is created.
type DispatchEventHandler struct {
	factory   *DispatchJobFactory
	submitter Submitter
	logger    *slog.Logger
}

// NewDispatchEventHandler creates a handler that turns created events into dispatch jobs.
func NewDispatchEventHandler(
	factory *DispatchJobFactory,
	submitter Submitter,
	logger *slog.Logger,
) *DispatchEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchEventHandler{
		factory:   factory,
		submitter: submitter,
		logger:    logger.With("component", "dispatch_event_handler"),
	}
}

// HandleEvent submits a dispatch job for TypeAdScriptTaskCreated events and
// ignores every other type.
func (h *DispatchEventHandler) HandleEvent(ctx context.Context, event *events.Event) error {
	if event.Type != events.TypeAdScriptTaskCreated {
		h.logger.Debug("ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	var payload events.AdScriptTaskCreatedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		h.logger.Error("failed to unmarshal payload", "error", err, "event_id", event.ID)
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if payload.Task == nil || payload.Task.ID <= 0 {
		return fmt.Errorf("created event %s carries no task", event.ID)
	}

	job := h.factory.NewJob(payload.Task.ID)
	if err := h.submitter.Submit(ctx, job); err != nil {
		h.logger.Error("failed to submit dispatch job",
			"error", err,
			"job_id", job.ID(),
			"task_id", payload.Task.ID,
			"event_id", event.ID)
		return fmt.Errorf("failed to submit dispatch job: %w", err)
	}

	h.logger.Info("dispatch job submitted",
		"job_id", job.ID(),
		"task_id", payload.Task.ID,
		"event_id", event.ID)
	return nil
}

var _ events.EventHandler = (*DispatchEventHandler)(nil)
