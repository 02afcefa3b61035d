// Package storage defines the durable document store the engine rebuilds its
// index from, and the drivers that implement it.
package storage

import (
	"context"
	"time"
)

// Document is one stored unit of text with its embedding.
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Vector   []float32      `json:"vector"`

	// Seq is assigned by the driver on first insert and kept across
	// replacements. It orders documents by first insertion.
	Seq uint64 `json:"seq"`

	// CreatedAt is kept from the first insert; UpdatedAt is the time of the
	// latest Put.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Manifest records the identity of a corpus. Vectors from different
// providers, models, dimensions or metrics are not comparable, so a store
// refuses to be opened under a different identity.
type Manifest struct {
	FormatVersion int       `json:"format_version"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	Dimensions    int       `json:"dimensions"`
	Metric        string    `json:"metric"`
	CreatedAt     time.Time `json:"created_at"`
}

// FormatVersion is the current on-disk record format.
const FormatVersion = 1

// Driver persists documents.
type Driver interface {
	// Put inserts doc or fully replaces the document with the same ID. The
	// returned document carries the driver-assigned Seq and the preserved
	// CreatedAt. The write is durable when Put returns.
	Put(ctx context.Context, doc *Document) (*Document, error)

	// Get returns the document for id or a NotFoundError.
	Get(ctx context.Context, id string) (*Document, error)

	// Delete removes the document for id and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// ListIDs returns every stored ID ordered by Seq.
	ListIDs(ctx context.Context) ([]string, error)

	// Manifest returns the recorded corpus identity, or nil for a store that
	// has never been written.
	Manifest(ctx context.Context) (*Manifest, error)

	// SetManifest records the corpus identity.
	SetManifest(ctx context.Context, m *Manifest) error

	// Close releases any resources held by the driver.
	Close() error
}
