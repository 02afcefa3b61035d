package eventstream_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/docquery/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals DocumentEvent with expected top-level keys", func() {
		event := eventstream.NewDocumentEvent(eventstream.EventTypeDocumentUpserted, eventstream.DocumentRef{
			ID:       "guide.md#0",
			Seq:      7,
			Metadata: map[string]any{"filename": "guide.md"},
		}, 12)

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("document"))
		Expect(got).To(HaveKeyWithValue("corpus_size", BeNumerically("==", 12)))
	})

	It("stamps a unique id per event", func() {
		a := eventstream.NewDocumentEvent(eventstream.EventTypeDocumentDeleted, eventstream.DocumentRef{ID: "a"}, 0)
		b := eventstream.NewDocumentEvent(eventstream.EventTypeDocumentDeleted, eventstream.DocumentRef{ID: "a"}, 0)
		Expect(a.EventID).NotTo(Equal(b.EventID))
		Expect(a.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.EventTypeDocumentUpserted).To(Equal("docquery.document.upserted"))
		Expect(eventstream.EventTypeDocumentDeleted).To(Equal("docquery.document.deleted"))
	})

	It("provides ErrNilEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilEvent).To(MatchError("nil document event"))
	})
})
