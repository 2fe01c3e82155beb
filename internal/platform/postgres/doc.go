// Package postgres provides PostgreSQL implementations of the storage
// interfaces defined in internal/store and internal/job, together with the
// embedded goose migrations that create their tables.
package postgres
