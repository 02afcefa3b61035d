package testutils

import "github.com/papercomputeco/docquery/pkg/storage"

// NewTestDocument creates a simple text document for testing
func NewTestDocument(id, text string) *storage.Document {
	return &storage.Document{
		ID:       id,
		Text:     text,
		Metadata: map[string]any{"source": "test"},
	}
}
