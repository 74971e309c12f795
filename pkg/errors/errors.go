package errors

import (
	"errors"
	"fmt"
)

// Domain error types for the analysis pipeline

var (
	// ErrNotFound indicates a record or stage payload was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a record already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates a missing or out-of-range snapshot field
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a backing service is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Pipeline-specific errors

var (
	// ErrStageOrder indicates a stage write that would leave a gap in the
	// record. Fatal: it means the orchestration upstream is broken.
	ErrStageOrder = errors.New("stage write out of order")

	// ErrConvergence indicates the delta-target strike solver did not
	// converge within its iteration budget. Recovered locally by the
	// ATR fallback, never surfaced to the caller.
	ErrConvergence = errors.New("strike solver did not converge")

	// ErrStageFailed indicates a pipeline stage failed; later stage slots
	// stay null for that record.
	ErrStageFailed = errors.New("pipeline stage failed")

	// ErrUnknownStage indicates a stage name outside the pipeline order
	ErrUnknownStage = errors.New("unknown stage")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join wraps errors.Join
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
