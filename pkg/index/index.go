// Package index defines the in-memory nearest-neighbor index the engine
// searches, together with the slot table and top-k collector its
// implementations share.
//
// Implementations are not safe for concurrent mutation. Concurrent Search
// calls are safe as long as no Insert or Remove runs at the same time; the
// engine guarantees this with its view lock.
package index

import (
	"context"
	"errors"

	"github.com/papercomputeco/docquery/pkg/filter"
)

// ErrDimensionMismatch is returned when an entry or query vector does not
// have the index dimension.
var ErrDimensionMismatch = errors.New("index dimension mismatch")

// Entry is one indexed document.
type Entry struct {
	ID string

	// Seq is the document's first-insertion sequence number. Ties in score
	// are broken by lower Seq first.
	Seq uint64

	Vector   []float32
	Metadata map[string]any
}

// Hit is a scored search result.
type Hit struct {
	ID    string
	Score float32
	Seq   uint64
}

// Index is a searchable set of entries keyed by ID.
type Index interface {
	// Insert adds e, replacing any entry with the same ID.
	Insert(e Entry) error

	// Remove deletes the entry for id and reports whether one existed.
	Remove(id string) bool

	// Search returns at most topK hits matching f, best first.
	Search(ctx context.Context, query []float32, topK int, f filter.Filter) ([]Hit, error)

	// Len returns the number of entries.
	Len() int

	// IDs returns every indexed ID in insertion order.
	IDs() []string
}

// Better reports whether a ranks ahead of b: higher score first, then lower
// sequence number.
func Better(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Seq < b.Seq
}
