// Package events provides types and interfaces for an event-driven architecture.
//
// Services emit events after their state changes are committed; handlers such as
// the dispatch job submitter and the failure notifier react to them without the
// emitting service knowing about them.
//
// The primary components are:
// - Event: a typed, JSON-encoded notification
// - EventHandler: interface for components that can handle events
// - EventEmitter: interface for components that can emit events
package events
