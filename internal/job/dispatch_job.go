package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/adscript-api/internal/domain"
	"github.com/phrazzld/adscript-api/internal/events"
	"github.com/phrazzld/adscript-api/internal/platform/logger"
	"github.com/phrazzld/adscript-api/internal/platform/n8n"
	"github.com/phrazzld/adscript-api/internal/store"
)

// TypeAdScriptDispatch identifies DispatchJob records.
const TypeAdScriptDispatch = "ad_script_dispatch"

// TaskLifecycle is the subset of the ad script service a dispatch needs.
type TaskLifecycle interface {
	Get(ctx context.Context, id int64) (*domain.AdScriptTask, error)
	MarkFailed(ctx context.Context, id int64, message string) (*domain.AdScriptTask, error)
}

// Dispatcher sends one task to the workflow engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload n8n.DispatchPayload) error
}

// DispatchPayload is the persisted payload of a DispatchJob.
type DispatchPayload struct {
	TaskID int64 `json:"task_id"`
}

// DispatchJob delivers a pending task to the n8n workflow. Every failed
// attempt marks the task failed and emits a failure event before the error
// is returned to the runner for retry.
type DispatchJob struct {
	id          uuid.UUID
	taskID      int64
	callbackURL string

	tasks      TaskLifecycle
	dispatcher Dispatcher
	emitter    events.EventEmitter
	logger     *slog.Logger
}

// ID returns the job's unique identifier
func (j *DispatchJob) ID() uuid.UUID {
	return j.id
}

// Type returns TypeAdScriptDispatch
func (j *DispatchJob) Type() string {
	return TypeAdScriptDispatch
}

// TaskID returns the ad script task this job delivers
func (j *DispatchJob) TaskID() int64 {
	return j.taskID
}

// Payload returns the JSON-encoded DispatchPayload
func (j *DispatchJob) Payload() []byte {
	payload, err := json.Marshal(DispatchPayload{TaskID: j.taskID})
	if err != nil {
		j.logger.Error("failed to encode dispatch payload", "error", err, "task_id", j.taskID)
		return nil
	}
	return payload
}

// Execute makes a single delivery attempt.
func (j *DispatchJob) Execute(ctx context.Context) error {
	log := logger.FromContextOrDefault(ctx, j.logger).With("task_id", j.taskID)

	task, err := j.tasks.Get(ctx, j.taskID)
	if err != nil {
		if store.IsNotFoundError(err) {
			log.Warn("task no longer exists, nothing to dispatch")
			return nil
		}
		return fmt.Errorf("failed to load task %d: %w", j.taskID, err)
	}

	if task.Status == domain.TaskStatusCompleted {
		log.Info("task already completed, skipping dispatch")
		return nil
	}

	dispatchErr := j.dispatcher.Dispatch(ctx, n8n.DispatchPayload{
		TaskID:             task.ID,
		ReferenceScript:    task.ReferenceScript,
		OutcomeDescription: task.OutcomeDescription,
		CallbackURL:        j.callbackURL,
	})
	if dispatchErr == nil {
		return nil
	}

	message := failureMessage(dispatchErr)
	log.Error("dispatch attempt failed", "error", message)

	failed, err := j.tasks.MarkFailed(ctx, j.taskID, message)
	if err != nil {
		if errors.Is(err, domain.ErrTaskAlreadyCompleted) {
			log.Info("task completed while dispatching, ignoring dispatch failure")
			return nil
		}
		log.Error("failed to mark task failed", "error", err)
		return fmt.Errorf("%s: %w", message, dispatchErr)
	}

	event, err := events.NewAdScriptTaskFailedEvent(failed, message)
	if err != nil {
		log.Error("failed to build task failed event", "error", err)
	} else if err := j.emitter.EmitEvent(ctx, event); err != nil {
		log.Error("failed to emit task failed event", "error", err)
	}

	return dispatchErr
}

// failureMessage renders the text stored in a task's error details.
func failureMessage(err error) string {
	var (
		statusErr *n8n.StatusError
		connErr   *n8n.ConnectionError
	)
	switch {
	case errors.Is(err, n8n.ErrNotConfigured),
		errors.As(err, &statusErr),
		errors.As(err, &connErr):
		return err.Error()
	default:
		return "Failed to send task to n8n: " + err.Error()
	}
}

// CallbackURL returns the result endpoint n8n calls for taskID.
func CallbackURL(baseURL string, taskID int64) string {
	return fmt.Sprintf("%s/api/ad-scripts/%d/result", strings.TrimRight(baseURL, "/"), taskID)
}

var _ Job = (*DispatchJob)(nil)
