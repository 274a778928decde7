package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a tenant has no session record or journal entry.
var ErrSessionNotFound = errors.New("session not found")

// ErrCapacity is returned when admitting a new session would exceed the concurrency ceiling.
// Callers may retry later; no session state is changed.
var ErrCapacity = errors.New("session capacity reached")

// ErrNotReady is returned when an operation needs a ready session and there is none.
var ErrNotReady = errors.New("session not ready")

// ErrConnect is returned when the engine could not be started.
var ErrConnect = errors.New("engine connect failed")

// ErrConnectTimeout marks a connect failure caused by the engine start-up deadline.
// It is the only connect failure that is retried.
var ErrConnectTimeout = errors.New("engine connect timed out")

// ErrSessionInvalidated is returned when the engine reports its transport is gone
// (detached frame, destroyed execution context, closed target).
var ErrSessionInvalidated = errors.New("session invalidated")

// ErrTimeout is returned when an engine operation exceeded its time budget.
// It does not invalidate the session.
var ErrTimeout = errors.New("engine operation timed out")

// ErrValidation is the sentinel wrapped by every ValidationError.
var ErrValidation = errors.New("invalid input")

// ErrGroupNotFound is returned when the target group does not exist for the tenant.
var ErrGroupNotFound = errors.New("group not found")

// ValidationError describes malformed caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap allows errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
