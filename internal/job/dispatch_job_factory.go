package job

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/adscript-api/internal/events"
)

// DispatchJobFactory creates DispatchJob instances
type DispatchJobFactory struct {
	tasks      TaskLifecycle
	dispatcher Dispatcher
	emitter    events.EventEmitter
	baseURL    string
	logger     *slog.Logger
}

// NewDispatchJobFactory creates a new factory for DispatchJobs.
// baseURL is the externally reachable root used to build callback URLs.
func NewDispatchJobFactory(
	tasks TaskLifecycle,
	dispatcher Dispatcher,
	emitter events.EventEmitter,
	baseURL string,
	logger *slog.Logger,
) *DispatchJobFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchJobFactory{
		tasks:      tasks,
		dispatcher: dispatcher,
		emitter:    emitter,
		baseURL:    baseURL,
		logger:     logger.With("component", "dispatch_job"),
	}
}

// Type returns TypeAdScriptDispatch
func (f *DispatchJobFactory) Type() string {
	return TypeAdScriptDispatch
}

// NewJob creates a fresh DispatchJob for taskID
func (f *DispatchJobFactory) NewJob(taskID int64) *DispatchJob {
	return f.build(uuid.New(), taskID)
}

// FromRecord rebuilds a DispatchJob from its stored record
func (f *DispatchJobFactory) FromRecord(rec *Record) (Job, error) {
	var payload DispatchPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid dispatch payload: %w", err)
	}
	if payload.TaskID <= 0 {
		return nil, fmt.Errorf("invalid dispatch payload: task_id %d", payload.TaskID)
	}
	return f.build(rec.ID, payload.TaskID), nil
}

func (f *DispatchJobFactory) build(id uuid.UUID, taskID int64) *DispatchJob {
	return &DispatchJob{
		id:          id,
		taskID:      taskID,
		callbackURL: CallbackURL(f.baseURL, taskID),
		tasks:       f.tasks,
		dispatcher:  f.dispatcher,
		emitter:     f.emitter,
		logger:      f.logger,
	}
}

var _ Factory = (*DispatchJobFactory)(nil)
