// Package service contains the application use cases. AdScriptService owns
// the ad script task lifecycle: it validates input, applies state transitions
// through the store's locked update and announces changes as events.
// UserService handles account registration and credential checks.
//
// Services depend on the interfaces in internal/store and internal/events,
// never on a specific storage implementation.
package service
