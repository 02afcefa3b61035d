package storage_test

import (
	"encoding/json"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/docquery/pkg/storage"
)

var _ = Describe("NormalizeMetadata", func() {
	It("widens integers and floats", func() {
		meta, err := storage.NormalizeMetadata(map[string]any{
			"i":  7,
			"u":  uint32(8),
			"f":  float32(0.5),
			"s":  "x",
			"b":  true,
			"jn": json.Number("12"),
			"jf": json.Number("3.0"),
			"je": json.Number("1e3"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(meta).To(Equal(map[string]any{
			"i":  int64(7),
			"u":  int64(8),
			"f":  0.5,
			"s":  "x",
			"b":  true,
			"jn": int64(12),
			"jf": 3.0,
			"je": 1000.0,
		}))
	})

	It("returns nil for empty metadata", func() {
		meta, err := storage.NormalizeMetadata(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(meta).To(BeNil())
	})

	DescribeTable("rejects non-scalar values",
		func(v any) {
			_, err := storage.NormalizeMetadata(map[string]any{"k": v})
			Expect(err).To(MatchError(storage.ErrInvalidMetadata))
		},
		Entry("null", nil),
		Entry("list", []any{"a"}),
		Entry("object", map[string]any{"a": 1}),
		Entry("overflowing uint", uint64(1<<63)),
		Entry("NaN", math.NaN()),
		Entry("infinity", math.Inf(1)),
	)

	It("rejects empty keys", func() {
		_, err := storage.NormalizeMetadata(map[string]any{"": "x"})
		Expect(err).To(MatchError(storage.ErrInvalidMetadata))
	})
})

var _ = Describe("Document JSON", func() {
	It("keeps integer metadata as int64", func() {
		var doc storage.Document
		err := json.Unmarshal([]byte(`{"id":"a","text":"t","metadata":{"year":2020,"ratio":0.5,"tag":"x"},"vector":[1,2],"seq":3}`), &doc)
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.ID).To(Equal("a"))
		Expect(doc.Seq).To(Equal(uint64(3)))
		Expect(doc.Vector).To(Equal([]float32{1, 2}))
		Expect(doc.Metadata).To(Equal(map[string]any{"year": int64(2020), "ratio": 0.5, "tag": "x"}))
	})

	It("keeps whole-valued floats as float64 through a round trip", func() {
		in := storage.Document{ID: "a", Text: "t", Metadata: map[string]any{
			"weight": float64(2),
			"big":    1e21,
			"year":   int64(2020),
		}}

		data, err := json.Marshal(in)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`"weight":2.0`))
		Expect(string(data)).To(ContainSubstring(`"year":2020`))

		var out storage.Document
		Expect(json.Unmarshal(data, &out)).To(Succeed())
		Expect(out.Metadata).To(Equal(in.Metadata))
	})

	It("omits empty metadata", func() {
		data, err := json.Marshal(&storage.Document{ID: "a"})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).NotTo(ContainSubstring("metadata"))
	})

	It("rejects nested metadata", func() {
		var doc storage.Document
		err := json.Unmarshal([]byte(`{"id":"a","metadata":{"nested":{"x":1}}}`), &doc)
		Expect(err).To(MatchError(storage.ErrInvalidMetadata))
	})
})

var _ = Describe("Merge", func() {
	It("assigns the next sequence to new documents", func() {
		out := storage.Merge(&storage.Document{ID: "a"}, nil, 9)
		Expect(out.Seq).To(Equal(uint64(9)))
		Expect(out.CreatedAt.IsZero()).To(BeFalse())
		Expect(out.UpdatedAt).To(Equal(out.CreatedAt))
	})

	It("keeps sequence and creation time of the existing document", func() {
		created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		existing := &storage.Document{ID: "a", Seq: 2, CreatedAt: created}

		out := storage.Merge(&storage.Document{ID: "a", Text: "new"}, existing, 9)
		Expect(out.Seq).To(Equal(uint64(2)))
		Expect(out.CreatedAt).To(Equal(created))
		Expect(out.Text).To(Equal("new"))
		Expect(out.UpdatedAt).To(BeTemporally(">", created))
	})

	It("does not alias the input", func() {
		in := &storage.Document{ID: "a", Vector: []float32{1}, Metadata: map[string]any{"k": "v"}}
		out := storage.Merge(in, nil, 1)
		out.Vector[0] = 5
		out.Metadata["k"] = "changed"
		Expect(in.Vector[0]).To(Equal(float32(1)))
		Expect(in.Metadata["k"]).To(Equal("v"))
	})
})
