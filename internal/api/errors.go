package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/adscript-api/internal/api/shared"
	"github.com/phrazzld/adscript-api/internal/domain"
	"github.com/phrazzld/adscript-api/internal/service"
	"github.com/phrazzld/adscript-api/internal/service/auth"
	"github.com/phrazzld/adscript-api/internal/store"
)

const genericErrorMessage = "An unexpected error occurred"

// userInputErrors are domain errors caused by the request payload.
var userInputErrors = []error{
	domain.ErrValidation,
	domain.ErrInvalidTaskStatus,
	domain.ErrEmptyEmail,
	domain.ErrInvalidEmail,
	domain.ErrEmptyPassword,
	domain.ErrPasswordTooShort,
	domain.ErrPasswordTooLong,
	store.ErrInvalidEntity,
}

func isUserInputError(err error) bool {
	for _, target := range userInputErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// exposing internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusInternalServerError

	case errors.Is(err, shared.ErrMalformedJSON):
		return http.StatusBadRequest

	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrExpiredRefreshToken),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrTaskAlreadyCompleted),
		errors.Is(err, store.ErrEmailExists):
		return http.StatusConflict

	case isUserInputError(err):
		return http.StatusUnprocessableEntity

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return genericErrorMessage
	case errors.Is(err, shared.ErrMalformedJSON):
		return "Invalid request format"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return "Invalid token"
	case errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrExpiredRefreshToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid refresh token"
	case errors.Is(err, service.ErrInvalidCredentials):
		return "Invalid credentials"
	case errors.Is(err, domain.ErrUnauthorized):
		return "Unauthenticated."
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, domain.ErrInvalidID):
		return "Task not found"
	case errors.Is(err, store.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, service.ErrTaskAlreadyCompleted):
		return "Task has already been completed"
	case errors.Is(err, store.ErrEmailExists):
		return "Email already exists"
	case errors.Is(err, domain.ErrPasswordTooShort),
		errors.Is(err, domain.ErrPasswordTooLong),
		errors.Is(err, domain.ErrEmptyPassword),
		errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrEmptyEmail):
		return capitalize(err.Error())
	case isUserInputError(err):
		return "The given data was invalid."
	default:
		return genericErrorMessage
	}
}

// HandleAPIError writes the response for err. Field validation errors get a
// 422 with per-field messages; anything unmapped becomes a 500 whose message
// is fallback when given.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) && verr.HasErrors() {
		shared.RespondWithValidationError(w, r, verr)
		return
	}

	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}

	var opts []shared.ResponseOption
	if status == http.StatusUnauthorized {
		opts = append(opts, shared.WithElevatedLogLevel())
	}

	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
