// Package pipeline provides the workflow orchestration core for surveyflow.
package pipeline

import (
	"errors"
	"fmt"
)

// ErrUnknownStep indicates a step id that was never registered. Routing to an
// unknown step is a programming error and aborts the run.
var ErrUnknownStep = errors.New("unknown step id")

// ErrNoPendingReview indicates a resume decision arrived for a run that has no
// suspended review awaiting input.
var ErrNoPendingReview = errors.New("no pending review for run")

// ErrRunExists indicates an attempt to start a run under an id that already
// has checkpoint history. Existing runs continue via Resume.
var ErrRunExists = errors.New("run already exists")

// ErrRunCompleted indicates an attempt to resume a run that already reached its
// terminal Completed state.
var ErrRunCompleted = errors.New("run already completed")

// ErrRunFailed indicates an attempt to resume a run whose last record is a
// non-retryable failure. The checkpoint history remains available for
// inspection.
var ErrRunFailed = errors.New("run failed and cannot be resumed")

// ExternalServiceError wraps a failure from an external collaborator (the
// generative model or the statistics tool). Retryable errors are retried by the
// engine with backoff up to the configured attempt budget; exhaustion suspends
// the run with a retryable halt so an operator can resume it later.
type ExternalServiceError struct {
	// Service names the collaborator, e.g. "model" or "pspp".
	Service string

	// Op is the operation that failed, e.g. "chat" or "exec".
	Op string

	// Retryable marks transient failures (rate limits, timeouts, 5xx).
	Retryable bool

	// Err is the underlying cause.
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// NewExternalServiceError builds an ExternalServiceError.
func NewExternalServiceError(service, op string, retryable bool, err error) *ExternalServiceError {
	return &ExternalServiceError{Service: service, Op: op, Retryable: retryable, Err: err}
}

// FatalError marks an unrecoverable condition: a corrupted checkpoint, an
// unknown step reference, a storage failure, or a missing prerequisite in
// state. The engine records it in a failed checkpoint and aborts the run,
// preserving all prior records.
type FatalError struct {
	Message string
	Cause   error
}

func (e *FatalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fatal: %s: %v", e.Message, e.Cause)
	}
	return "fatal: " + e.Message
}

func (e *FatalError) Unwrap() error {
	return e.Cause
}

// Fatalf builds a FatalError from a format string.
func Fatalf(format string, args ...interface{}) *FatalError {
	return &FatalError{Message: fmt.Sprintf(format, args...)}
}

// FatalWrap builds a FatalError around a cause.
func FatalWrap(message string, cause error) *FatalError {
	return &FatalError{Message: message, Cause: cause}
}

// IsRetryable reports whether err is an ExternalServiceError marked retryable.
func IsRetryable(err error) bool {
	var ese *ExternalServiceError
	return errors.As(err, &ese) && ese.Retryable
}
