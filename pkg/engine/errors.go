package engine

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is against an error returned by the
// engine.
var (
	// ErrInvalidQuery is a malformed query: no text or vector, both, a
	// non-positive top_k, a bad filter or a vector of the wrong dimension.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidDocument is a document the engine refuses to store.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrEmbeddingUnavailable means the embedding provider failed. Retryable.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrStoreUnavailable means the document store failed. Retryable.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound is returned by Get for an unknown id.
	ErrNotFound = errors.New("not found")

	// ErrCorpusMismatch is returned by Open when the store was built with a
	// different provider, model, dimension or metric.
	ErrCorpusMismatch = errors.New("corpus mismatch")
)

// Error describes a failed engine operation.
type Error struct {
	Op   string
	ID   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.ID != "" {
		msg += " " + e.ID
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	return e.Kind == ErrEmbeddingUnavailable || e.Kind == ErrStoreUnavailable
}

// KindOf returns the engine error kind of err, or nil when err did not come
// from the engine.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

func newError(op, id string, kind, err error) *Error {
	return &Error{Op: op, ID: id, Kind: kind, Err: err}
}

func invalidf(op, id string, kind error, format string, args ...any) *Error {
	return newError(op, id, kind, fmt.Errorf(format, args...))
}
