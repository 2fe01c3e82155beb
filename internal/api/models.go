package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/adscript-api/internal/domain"
)

// RegisterRequest defines the payload for the user registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

// LoginRequest defines the payload for the user login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	UserID       uuid.UUID `json:"user_id"`
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    string    `json:"expires_at,omitempty"`
}

// RefreshTokenRequest defines the payload for the token refresh endpoint.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshTokenResponse is returned by the token refresh endpoint.
type RefreshTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
}

// CreateTaskRequest is the body of POST /api/ad-scripts.
// Length rules are enforced by the domain so that messages match the
// callback validation.
type CreateTaskRequest struct {
	ReferenceScript    string `json:"reference_script"`
	OutcomeDescription string `json:"outcome_description"`
}

// TaskResultRequest is the body of the n8n result callback.
type TaskResultRequest struct {
	NewScript string `json:"new_script"`
	Analysis  string `json:"analysis"`
}

// TaskResource is the JSON representation of an ad script task.
// ErrorDetails is only set for failed tasks and ProcessingTime only for
// completed ones.
type TaskResource struct {
	ID                 int64             `json:"id"`
	ReferenceScript    string            `json:"reference_script"`
	OutcomeDescription string            `json:"outcome_description"`
	NewScript          *string           `json:"new_script"`
	Analysis           *string           `json:"analysis"`
	Status             domain.TaskStatus `json:"status"`
	CreatedAt          string            `json:"created_at"`
	UpdatedAt          string            `json:"updated_at"`
	ErrorDetails       *string           `json:"error_details,omitempty"`
	ProcessingTime     *int64            `json:"processing_time,omitempty"`
}

// NewTaskResource renders task for a response.
func NewTaskResource(task *domain.AdScriptTask) TaskResource {
	res := TaskResource{
		ID:                 task.ID,
		ReferenceScript:    task.ReferenceScript,
		OutcomeDescription: task.OutcomeDescription,
		NewScript:          task.NewScript,
		Analysis:           task.Analysis,
		Status:             task.Status,
		CreatedAt:          formatTime(task.CreatedAt),
		UpdatedAt:          formatTime(task.UpdatedAt),
	}

	switch task.Status {
	case domain.TaskStatusFailed:
		details := ""
		if task.ErrorDetails != nil {
			details = *task.ErrorDetails
		}
		res.ErrorDetails = &details
	case domain.TaskStatusCompleted:
		if d, ok := task.ProcessingTime(); ok {
			secs := int64(d / time.Second)
			if secs < 0 {
				secs = 0
			}
			res.ProcessingTime = &secs
		}
	}

	return res
}

// NewTaskResources renders a slice of tasks; the result is never nil.
func NewTaskResources(tasks []*domain.AdScriptTask) []TaskResource {
	out := make([]TaskResource, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, NewTaskResource(t))
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// TaskEnvelope wraps a single task under "data" (create response).
type TaskEnvelope struct {
	Data TaskResource `json:"data"`
}

// TaskShowResponse wraps a single task under "task".
type TaskShowResponse struct {
	Task TaskResource `json:"task"`
}

// TaskResultResponse is returned after a successful result callback.
type TaskResultResponse struct {
	Message string       `json:"message"`
	Task    TaskResource `json:"task"`
}

// PaginationMeta describes the page returned by the index endpoint.
type PaginationMeta struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	LastPage    int   `json:"last_page"`
}

// TaskListResponse is the index endpoint body.
type TaskListResponse struct {
	Data []TaskResource `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

// HealthResponse is the task health endpoint body.
type HealthResponse struct {
	Status     string            `json:"status"`
	Database   string            `json:"database"`
	Statistics *domain.TaskStats `json:"statistics,omitempty"`
	Error      string            `json:"error,omitempty"`
	Timestamp  string            `json:"timestamp"`
}
