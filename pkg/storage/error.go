package storage

import (
	"errors"
	"fmt"
)

// ErrUnavailable wraps I/O failures of the backing store.
var ErrUnavailable = errors.New("document store unavailable")

// ErrInvalidMetadata is returned for metadata values that are not scalars.
var ErrInvalidMetadata = errors.New("invalid metadata")

// NotFoundError is returned when a document doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "document not found"
	}

	return "document not found: " + e.ID
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// Unavailable wraps err with ErrUnavailable and an operation description.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
