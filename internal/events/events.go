package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/adscript-api/internal/domain"
)

// Event types emitted by the ad script lifecycle.
const (
	// TypeAdScriptTaskCreated fires after a task is inserted in the pending state.
	TypeAdScriptTaskCreated = "ad_script_task.created"

	// TypeAdScriptTaskFailed fires after a dispatch attempt marks a task failed.
	TypeAdScriptTaskFailed = "ad_script_task.failed"
)

// Event is a notification that something happened to a domain entity.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type identifies what happened, e.g. TypeAdScriptTaskFailed
	Type string `json:"type"`

	// Payload contains the type-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates a new Event with the specified type and payload.
func NewEvent(eventType string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// AdScriptTaskCreatedPayload is the payload of TypeAdScriptTaskCreated.
type AdScriptTaskCreatedPayload struct {
	Task *domain.AdScriptTask `json:"task"`
}

// AdScriptTaskFailedPayload is the payload of TypeAdScriptTaskFailed.
type AdScriptTaskFailedPayload struct {
	Task         *domain.AdScriptTask `json:"task"`
	ErrorMessage string               `json:"error_message"`
}

// NewAdScriptTaskCreatedEvent builds a TypeAdScriptTaskCreated event.
func NewAdScriptTaskCreatedEvent(task *domain.AdScriptTask) (*Event, error) {
	return NewEvent(TypeAdScriptTaskCreated, AdScriptTaskCreatedPayload{Task: task})
}

// NewAdScriptTaskFailedEvent builds a TypeAdScriptTaskFailed event.
func NewAdScriptTaskFailedEvent(task *domain.AdScriptTask, errorMessage string) (*Event, error) {
	return NewEvent(TypeAdScriptTaskFailed, AdScriptTaskFailedPayload{
		Task:         task,
		ErrorMessage: errorMessage,
	})
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Handlers must ignore event types they do not understand.
	HandleEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts an ordinary function to the EventHandler interface.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent calls f(ctx, event).
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *Event) error
}
