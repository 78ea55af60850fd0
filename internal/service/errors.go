package service

import (
	"errors"
	"fmt"
)

// Common service errors - sentinel errors used across service implementations.
// Store sentinels (store.ErrNotFound and friends) pass through ServiceError
// unchanged, so callers check them with errors.Is as well.
var (
	// ErrNoUsers is returned by the debug auth bypass when nobody has registered yet.
	// API layer should map this to HTTP 401 Unauthorized.
	ErrNoUsers = errors.New("no registered users")

	// ErrNilDependency is returned by constructors given a nil collaborator.
	ErrNilDependency = errors.New("required dependency is nil")
)

// ServiceError wraps errors from a service with the operation that failed.
type ServiceError struct {
	// Service is the service name (e.g., "food_image", "ledger")
	Service string
	// Operation is the operation that failed (e.g., "upload", "add_to_week")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s service %s failed: %s: %v", e.Service, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s service %s failed: %s", e.Service, e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError. A nil err yields nil.
func NewServiceError(service, operation, message string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{
		Service:   service,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

func nilDependency(service, name string) error {
	return &ServiceError{
		Service:   service,
		Operation: "create_service",
		Message:   name + " cannot be nil",
		Err:       ErrNilDependency,
	}
}
