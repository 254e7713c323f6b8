package payflow

import (
	"errors"
	"fmt"
)

// Error type constants for classification and host-layer translation
const (
	// ErrorTypeValidation indicates a malformed input record. No Document is
	// produced for a validation failure.
	ErrorTypeValidation = "validation"

	// ErrorTypeNotFound indicates a referenced checkpoint does not exist.
	ErrorTypeNotFound = "not_found"

	// ErrorTypeAlreadyDecided indicates a decision was already recorded for a
	// checkpoint. Decisions are exactly-once.
	ErrorTypeAlreadyDecided = "already_decided"

	// ErrorTypePersistence indicates the checkpoint store or another durable
	// backend failed. A suspend without a durable snapshot is fatal to the run.
	ErrorTypePersistence = "persistence"
)

// PipelineError represents a structured error with classification.
// It supports Go's error wrapping patterns with Unwrap().
type PipelineError struct {
	Type    string `json:"type"`
	Cause   string `json:"cause"`
	Wrapped error  `json:"-"`
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Cause)
}

// Unwrap implements the error unwrapping interface for errors.Is and errors.As
func (e *PipelineError) Unwrap() error {
	return e.Wrapped
}

// NewPipelineError creates a new PipelineError with the specified type and cause.
func NewPipelineError(errorType, cause string) *PipelineError {
	return &PipelineError{Type: errorType, Cause: cause}
}

// NewValidationError creates a validation error with a formatted cause.
func NewValidationError(format string, args ...any) *PipelineError {
	return &PipelineError{Type: ErrorTypeValidation, Cause: fmt.Sprintf(format, args...)}
}

// WrapPersistenceError wraps a backend error as a persistence failure.
func WrapPersistenceError(err error, context string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypePersistence,
		Cause:   fmt.Sprintf("%s: %s", context, err.Error()),
		Wrapped: err,
	}
}

// errorTypeOf returns the classification of err, or "" for unclassified errors.
func errorTypeOf(err error) string {
	var pErr *PipelineError
	if errors.As(err, &pErr) {
		return pErr.Type
	}
	return ""
}

// IsNotFound reports whether err indicates a missing checkpoint.
func IsNotFound(err error) bool {
	return errorTypeOf(err) == ErrorTypeNotFound
}

// IsAlreadyDecided reports whether err indicates a repeated decision submission.
func IsAlreadyDecided(err error) bool {
	return errorTypeOf(err) == ErrorTypeAlreadyDecided
}

// IsValidation reports whether err indicates malformed input.
func IsValidation(err error) bool {
	return errorTypeOf(err) == ErrorTypeValidation
}
