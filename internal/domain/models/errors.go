package models

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Every typed error below matches exactly one of them through errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrDependency = errors.New("dependency unavailable")
)

// ValidationError reports malformed input or a batch that is empty after filtering.
type ValidationError struct {
	Message  string
	Rejected []Rejection
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a referenced job or operation that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError reports a natural-key collision or a lost whole-record write race.
type ConflictError struct {
	Resource string
	ID       string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Resource, e.ID, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// DependencyError wraps failures of external collaborators such as the job catalog.
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	if e.Err == nil {
		return e.Dependency + " unavailable"
	}
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
}

func (e *DependencyError) Is(target error) bool { return target == ErrDependency }

func (e *DependencyError) Unwrap() error { return e.Err }

// Rejection describes one batch item dropped during validation.
type Rejection struct {
	Index       int    `json:"index"`
	OperationID string `json:"operationId,omitempty"`
	Reason      string `json:"reason"`
}
