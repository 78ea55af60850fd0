package storage

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned when a location does not name a stored object.
var ErrObjectNotFound = errors.New("object not found")

// ErrInvalidLocation is returned for locations the store did not produce.
var ErrInvalidLocation = errors.New("invalid object location")

// ObjectStore persists binary uploads.
type ObjectStore interface {
	// Put stores data under key and returns its location.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Get returns the bytes stored at location.
	Get(ctx context.Context, location string) ([]byte, error)

	// Delete removes the object at location. Deleting a missing object is not an error.
	Delete(ctx context.Context, location string) error
}
