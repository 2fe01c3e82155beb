// Package store declares the persistence contracts for ad script tasks and
// users. Implementations live in internal/platform/postgres; services only
// see these interfaces and the sentinel errors in errors.go.
package store
