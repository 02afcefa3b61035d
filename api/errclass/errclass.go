// Package errclass maps engine failures onto the three outcomes the
// protocol facades report: the caller's request was invalid, the service
// is temporarily unable to answer, or the requested document does not exist.
package errclass

import (
	"context"
	"errors"
	"net/http"

	"github.com/papercomputeco/docquery/pkg/engine"
	"github.com/papercomputeco/docquery/pkg/loader"
)

type Class int

const (
	Internal Class = iota
	Invalid
	Unavailable
	NotFound
)

// Of classifies err. Errors the engine did not produce are Internal.
func Of(err error) Class {
	switch {
	case err == nil:
		return Internal
	case errors.Is(err, engine.ErrInvalidQuery), errors.Is(err, engine.ErrInvalidDocument):
		return Invalid
	case errors.Is(err, engine.ErrEmbeddingUnavailable), errors.Is(err, engine.ErrStoreUnavailable):
		return Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		return Unavailable
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, loader.ErrUnknownDocument):
		return NotFound
	default:
		return Internal
	}
}

// Message is the short label reported to clients.
func (c Class) Message() string {
	switch c {
	case Invalid:
		return "invalid request"
	case Unavailable:
		return "retry later"
	case NotFound:
		return "not found"
	default:
		return "internal error"
	}
}

func (c Class) HTTPStatus() int {
	switch c {
	case Invalid:
		return http.StatusBadRequest
	case Unavailable:
		return http.StatusServiceUnavailable
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
