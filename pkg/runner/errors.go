package runner

import (
	"errors"
	"fmt"
)

// ErrStoppedOnFailure is returned by Run when the stop-on-failure policy
// aborted the run after a non-success terminal result.
var ErrStoppedOnFailure = errors.New("run stopped on failure")

// ErrorClass classifies runner errors for retry and reporting decisions.
type ErrorClass string

const (
	// ErrorClassTransient covers failures that may succeed on retry, such
	// as a container runtime hiccup.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassConstruction covers malformed inputs: unknown atoms,
	// unreadable artifacts, invalid configuration. These abort before any
	// build starts.
	ErrorClassConstruction ErrorClass = "construction"

	// ErrorClassPermanent covers non-recoverable execution errors.
	ErrorClassPermanent ErrorClass = "permanent"
)

// RunnerError is a classified error with package context.
type RunnerError struct {
	Class   ErrorClass
	Message string
	Package string
	Attempt int
	Err     error
}

// Error implements the error interface.
func (e *RunnerError) Error() string {
	if e.Package != "" {
		return fmt.Sprintf("[%s] %s (package=%s): %v", e.Class, e.Message, e.Package, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Class, e.Message, e.Err)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *RunnerError) Unwrap() error {
	return e.Err
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *RunnerError {
	return &RunnerError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewConstructionError creates a new construction error.
func NewConstructionError(message string, err error) *RunnerError {
	return &RunnerError{Class: ErrorClassConstruction, Message: message, Err: err}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *RunnerError {
	return &RunnerError{Class: ErrorClassPermanent, Message: message, Err: err}
}

// WithPackage adds package context to an error.
func (e *RunnerError) WithPackage(atom string) *RunnerError {
	e.Package = atom
	return e
}

// WithAttempt adds attempt context to an error.
func (e *RunnerError) WithAttempt(attempt int) *RunnerError {
	e.Attempt = attempt
	return e
}

// IsConstruction reports whether err is a construction error.
func IsConstruction(err error) bool {
	var e *RunnerError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConstruction
	}
	return false
}

// IsTransient reports whether err is a transient error.
func IsTransient(err error) bool {
	var e *RunnerError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}
