package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// TaskStatus represents the lifecycle state of an ad script task.
type TaskStatus string

// Possible task status values. Both completed and failed are terminal,
// but only completed is immutable; a failed task may still be completed.
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Text length bounds applied to every script field, counted in characters.
const (
	MinScriptLength = 10
	MaxScriptLength = 10000
)

// IsValid reports whether s is one of the known statuses.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// ParseTaskStatus converts a raw string into a TaskStatus.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	s := TaskStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTaskStatus, raw)
	}
	return s, nil
}

// AdScriptTask is a request to rewrite a reference ad script so it better
// matches a described outcome. The rewrite is produced by an external workflow.
type AdScriptTask struct {
	ID                 int64      `json:"id"`
	ReferenceScript    string     `json:"reference_script"`
	OutcomeDescription string     `json:"outcome_description"`
	NewScript          *string    `json:"new_script"`
	Analysis           *string    `json:"analysis"`
	Status             TaskStatus `json:"status"`
	ErrorDetails       *string    `json:"error_details,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// NewAdScriptTask validates the inputs and returns a pending task.
// The ID is assigned by the store on insert.
func NewAdScriptTask(referenceScript, outcomeDescription string) (*AdScriptTask, error) {
	now := time.Now().UTC()
	task := &AdScriptTask{
		ReferenceScript:    strings.TrimSpace(referenceScript),
		OutcomeDescription: strings.TrimSpace(outcomeDescription),
		Status:             TaskStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := ValidateTaskInput(task.ReferenceScript, task.OutcomeDescription); err != nil {
		return nil, err
	}

	return task, nil
}

// ValidateTaskInput checks the fields supplied when a task is created.
func ValidateTaskInput(referenceScript, outcomeDescription string) error {
	verr := NewValidationError()
	validateScriptField(verr, "reference_script", referenceScript)
	validateScriptField(verr, "outcome_description", outcomeDescription)
	return verr.OrNil()
}

// ValidateTaskResult checks the fields supplied by a result callback.
func ValidateTaskResult(newScript, analysis string) error {
	verr := NewValidationError()
	validateScriptField(verr, "new_script", newScript)
	validateScriptField(verr, "analysis", analysis)
	return verr.OrNil()
}

func validateScriptField(verr *ValidationError, field, value string) {
	label := strings.ReplaceAll(field, "_", " ")
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	switch {
	case n == 0:
		verr.Add(field, fmt.Sprintf("The %s field is required.", label))
	case n < MinScriptLength:
		verr.Add(field, fmt.Sprintf("The %s must be at least %d characters.", label, MinScriptLength))
	case n > MaxScriptLength:
		verr.Add(field, fmt.Sprintf("The %s may not be greater than %d characters.", label, MaxScriptLength))
	}
}

// MarkCompleted records a successful result. A completed task is never
// modified again; a failed task may still be completed.
func (t *AdScriptTask) MarkCompleted(newScript, analysis string, now time.Time) error {
	if t.Status == TaskStatusCompleted {
		return ErrTaskAlreadyCompleted
	}

	newScript = strings.TrimSpace(newScript)
	analysis = strings.TrimSpace(analysis)
	if err := ValidateTaskResult(newScript, analysis); err != nil {
		return err
	}

	t.Status = TaskStatusCompleted
	t.NewScript = &newScript
	t.Analysis = &analysis
	t.ErrorDetails = nil
	t.UpdatedAt = now.UTC()
	return nil
}

// MarkFailed records a failure message. Completed tasks are left untouched.
func (t *AdScriptTask) MarkFailed(message string, now time.Time) error {
	if t.Status == TaskStatusCompleted {
		return ErrTaskAlreadyCompleted
	}

	t.Status = TaskStatusFailed
	t.ErrorDetails = &message
	t.NewScript = nil
	t.Analysis = nil
	t.UpdatedAt = now.UTC()
	return nil
}

// ProcessingTime returns how long the task took to complete.
// The boolean is false unless the task is completed.
func (t *AdScriptTask) ProcessingTime() (time.Duration, bool) {
	if t.Status != TaskStatusCompleted {
		return 0, false
	}
	return t.UpdatedAt.Sub(t.CreatedAt), true
}

// TaskStats holds per-status task counts.
type TaskStats struct {
	Pending   int64 `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Total     int64 `json:"total"`
}
