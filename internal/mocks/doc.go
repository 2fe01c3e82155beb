// Package mocks provides in-memory and function-field test doubles for the
// store, event and auth interfaces.
//
// Stores keep their data in maps guarded by a mutex, so they can back a real
// service in handler tests. Failures are injected through the *Fn and *Err
// fields:
//
//	tasks := mocks.NewMockAdScriptTaskStore()
//	tasks.PingErr = errors.New("connection refused")
package mocks
