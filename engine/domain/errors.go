package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the pipeline's failure taxonomy.
var (
	// Input validation (client-correctable).
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrFileTooLarge      = errors.New("file exceeds maximum size")

	// External-service contract violations.
	ErrExtractionEmpty = errors.New("extraction returned no content")

	// Store failures after the retry ceiling.
	ErrStoreWriteFailed = errors.New("graph store write failed")

	// Not-found class, reported distinctly from internal failures.
	ErrDiagramNotFound  = errors.New("diagram not found")
	ErrNoDiagramsFound  = errors.New("no diagrams in store")

	// Per-entry coercion failures; logged and skipped, never surfaced.
	ErrUnknownComponentType = errors.New("unknown component type")
	ErrUnknownRelationType  = errors.New("unknown relationship type")
)

// ParseError reports that no parse strategy recovered valid JSON from the
// model's response. Raw carries the full content for diagnostics.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse extraction response: %v (content %d bytes)", e.Err, len(e.Raw))
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError wraps a sentinel with the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
