package herald

import (
	"errors"
	"fmt"
)

var (
	// Store errors.
	ErrNoStore     = errors.New("herald: no store configured")
	ErrStoreClosed = errors.New("herald: store closed")

	// Not found errors.
	ErrJobNotFound  = errors.New("herald: job not found")
	ErrCronNotFound = errors.New("herald: cron entry not found")

	// Engine errors.
	ErrQueueClosed = errors.New("herald: queue is shutting down")
	ErrNoExecutor  = errors.New("herald: no executor registered for job kind")

	// Input errors.
	ErrValidation = errors.New("herald: validation failed")
	ErrParse      = errors.New("herald: unrecognized time expression")
	ErrConflict   = errors.New("herald: invalid state transition")
)

// ValidationError reports bad job-creation input. The job is never persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("herald: invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error { return ErrValidation }

// ParseError reports a time expression that could not be resolved.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("herald: cannot parse time %q", e.Input)
	}
	return fmt.Sprintf("herald: cannot parse time %q: %s", e.Input, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrParse).
func (e *ParseError) Unwrap() error { return ErrParse }

// StateConflictError is returned when cancel or retry is attempted on a job
// that is not in the required source state.
type StateConflictError struct {
	ID     int64
	Op     string
	Status string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("herald: cannot %s job %d in status %q", e.Op, e.ID, e.Status)
}

// Unwrap lets callers match with errors.Is(err, ErrConflict).
func (e *StateConflictError) Unwrap() error { return ErrConflict }

// ExecutionError wraps an executor failure for a single attempt. It drives
// retry and backoff inside the queue and never reaches the enqueuing caller.
type ExecutionError struct {
	JobID   int64
	Attempt int
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("herald: job %d attempt %d: %v", e.JobID, e.Attempt, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
