package apperrors

import (
	"errors"
	"fmt"
)

// Category classifies pipeline errors by how the caller should react.
type Category string

const (
	// Validation errors: retrying the same unit of work cannot succeed.
	CategoryValidation Category = "VALIDATION"
	// Transient errors: the surrounding delivery mechanism may redeliver.
	CategoryTransient Category = "TRANSIENT"
	// Invariant errors: a defect, logged loudly and surfaced.
	CategoryInvariant Category = "INVARIANT"
	// Fatal errors: unrecoverable for this unit of work.
	CategoryFatal Category = "FATAL"
)

// Typed failures referenced throughout the pipeline. Callers match with
// errors.Is; wrapping preserves the sentinel.
var (
	ErrUnknownIndicator    = errors.New("unknown indicator")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrMissingIndicator    = errors.New("missing indicator")
	ErrInvalidSnapshot     = errors.New("invalid snapshot")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderTimeout     = errors.New("provider timeout")
	ErrBrokerUnavailable   = errors.New("broker unavailable")
	ErrStoreUnavailable    = errors.New("store unavailable")
)

// PipelineError carries category, component and operation context so a
// single log line identifies where a failure happened and whether the
// transport should redeliver.
type PipelineError struct {
	Category   Category
	Component  string
	Operation  string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *PipelineError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Underlying }

// IsRetryable reports whether the delivery layer should redeliver the
// unit of work that produced this error.
func (e *PipelineError) IsRetryable() bool { return e.Retryable }

// New creates a categorized error without an underlying cause.
func New(category Category, component, operation, message string) *PipelineError {
	return &PipelineError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Retryable: category == CategoryTransient,
	}
}

// Wrap attaches category and component context to an existing error.
func Wrap(err error, category Category, component, operation string) *PipelineError {
	if err == nil {
		return nil
	}
	return &PipelineError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Retryable:  category == CategoryTransient,
	}
}

// Validation wraps err as a non-retryable validation failure.
func Validation(err error, component, operation string) *PipelineError {
	return Wrap(err, CategoryValidation, component, operation)
}

// Transient wraps err as a retryable infrastructure failure.
func Transient(err error, component, operation string) *PipelineError {
	return Wrap(err, CategoryTransient, component, operation)
}

// Invariant wraps err as an invariant violation.
func Invariant(err error, component, operation string) *PipelineError {
	return Wrap(err, CategoryInvariant, component, operation)
}

// IsValidation reports whether err (or anything it wraps) is a validation
// failure that retrying cannot fix.
func IsValidation(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category == CategoryValidation
	}
	return errors.Is(err, ErrUnknownIndicator) ||
		errors.Is(err, ErrInsufficientHistory) ||
		errors.Is(err, ErrMissingIndicator) ||
		errors.Is(err, ErrInvalidSnapshot)
}
