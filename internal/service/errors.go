// Package service provides the application services for ad script tasks and users.
package service

import (
	"errors"

	"github.com/phrazzld/adscript-api/internal/domain"
	"github.com/phrazzld/adscript-api/internal/store"
)

// Service sentinel errors. Callers check them with errors.Is; the API layer
// maps them to HTTP status codes.
var (
	// ErrTaskNotFound indicates the requested ad script task does not exist.
	// It matches store.ErrNotFound as well.
	ErrTaskNotFound = store.ErrAdScriptTaskNotFound

	// ErrTaskAlreadyCompleted indicates a completed task was asked to change.
	// API layer should map this to HTTP 409 Conflict.
	ErrTaskAlreadyCompleted = domain.ErrTaskAlreadyCompleted

	// ErrInvalidCredentials indicates a login with an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
)
