package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeDocumentUpserted is emitted after a document is stored.
	EventTypeDocumentUpserted = "docquery.document.upserted"

	// EventTypeDocumentDeleted is emitted after a document is removed.
	EventTypeDocumentDeleted = "docquery.document.deleted"
)

// DocumentEvent is a transport-neutral event payload for a committed
// corpus mutation. Vectors and text are not carried.
type DocumentEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Document      DocumentRef `json:"document"`
	CorpusSize    int         `json:"corpus_size"`
}

// DocumentRef identifies the mutated document.
type DocumentRef struct {
	ID       string         `json:"id"`
	Seq      uint64         `json:"seq,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewDocumentEvent stamps a new event of the given type.
func NewDocumentEvent(eventType string, doc DocumentRef, corpusSize int) *DocumentEvent {
	return &DocumentEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Document:      doc,
		CorpusSize:    corpusSize,
	}
}
