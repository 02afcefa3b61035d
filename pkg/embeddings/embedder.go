// Package embeddings defines the text-to-vector provider contract and its
// implementations.
package embeddings

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the provider cannot produce an embedding
// right now: it is down, still loading its model, rate limited or returned
// something unusable. Callers may retry.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding. For a fixed model the
	// same text always yields the same vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}
