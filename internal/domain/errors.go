package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// Every *ValidationError matches it with errors.Is.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidFormat is returned when data is not in the expected format.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrUnauthorized is returned when an operation is not permitted.
	ErrUnauthorized = errors.New("unauthorized operation")

	// ErrUnsupportedUnit is returned for quantity units outside the conversion table.
	ErrUnsupportedUnit = errors.New("unsupported unit")

	// ErrUnknownNutrient is returned when a nutrient map carries a key outside the vocabulary.
	ErrUnknownNutrient = errors.New("unknown nutrient")

	// ErrFileTooLarge is returned when an upload exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrUnsupportedMediaType is returned when an upload's content type is not accepted.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)

// ValidationError describes an invalid field. It unwraps to the more specific
// cause and always matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError creates a ValidationError for field.
// err may be nil, in which case the error only matches ErrValidation.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: err}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Unwrap returns the specific cause.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
