package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/adscript-api/internal/events"
)

// MockEventEmitter implements events.EventEmitter by recording emitted events.
type MockEventEmitter struct {
	EmitFn func(ctx context.Context, event *events.Event) error

	mu     sync.Mutex
	Events []*events.Event
}

var _ events.EventEmitter = (*MockEventEmitter)(nil)

// EmitEvent implements events.EventEmitter
func (m *MockEventEmitter) EmitEvent(ctx context.Context, event *events.Event) error {
	m.mu.Lock()
	m.Events = append(m.Events, event)
	m.mu.Unlock()

	if m.EmitFn != nil {
		return m.EmitFn(ctx, event)
	}
	return nil
}

// EventsOfType returns the recorded events with the given type.
func (m *MockEventEmitter) EventsOfType(eventType string) []*events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*events.Event
	for _, e := range m.Events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
