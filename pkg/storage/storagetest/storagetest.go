// Package storagetest holds the behavior every storage.Driver must share,
// as ginkgo specs each driver's suite runs against its own constructor.
package storagetest

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/docquery/pkg/storage"
)

// NewDocument returns a document with a small fixed vector.
func NewDocument(id, text string, meta map[string]any) *storage.Document {
	return &storage.Document{
		ID:       id,
		Text:     text,
		Metadata: meta,
		Vector:   []float32{0.25, -0.5, 1},
	}
}

// DescribeDriver registers the shared driver specs. newDriver is called
// before every test and the driver it returns is closed afterwards.
func DescribeDriver(newDriver func() storage.Driver) {
	var (
		ctx    context.Context
		driver storage.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = nil
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	Describe("Put and Get", func() {
		It("round-trips text, metadata and vector", func() {
			doc := NewDocument("a", "cats purr", map[string]any{
				"filename": "cats.md",
				"year":     int64(2021),
				"score":    0.5,
				"weight":   float64(2),
				"draft":    true,
			})

			stored, err := driver.Put(ctx, doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Seq).To(BeNumerically(">", 0))
			Expect(stored.CreatedAt.IsZero()).To(BeFalse())

			got, err := driver.Get(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("a"))
			Expect(got.Text).To(Equal("cats purr"))
			Expect(got.Vector).To(Equal(doc.Vector))
			Expect(got.Metadata).To(Equal(map[string]any{
				"filename": "cats.md",
				"year":     int64(2021),
				"score":    0.5,
				"weight":   float64(2),
				"draft":    true,
			}))
			Expect(got.Seq).To(Equal(stored.Seq))
			Expect(got.CreatedAt).To(BeTemporally("~", stored.CreatedAt, time.Millisecond))
		})

		It("returns NotFoundError for a missing id", func() {
			_, err := driver.Get(ctx, "missing")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("replaces a document fully while keeping its sequence and creation time", func() {
			first, err := driver.Put(ctx, NewDocument("a", "v1", map[string]any{"old": "x"}))
			Expect(err).NotTo(HaveOccurred())

			_, err = driver.Put(ctx, NewDocument("b", "other", nil))
			Expect(err).NotTo(HaveOccurred())

			replacement := NewDocument("a", "v2", map[string]any{"new": "y"})
			replacement.Vector = []float32{1, 1, 1}
			replacement.UpdatedAt = first.CreatedAt.Add(time.Hour)
			second, err := driver.Put(ctx, replacement)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Seq).To(Equal(first.Seq))

			got, err := driver.Get(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Text).To(Equal("v2"))
			Expect(got.Vector).To(Equal([]float32{1, 1, 1}))
			Expect(got.Metadata).To(Equal(map[string]any{"new": "y"}))
			Expect(got.CreatedAt).To(BeTemporally("~", first.CreatedAt, time.Millisecond))
			Expect(got.UpdatedAt).To(BeTemporally(">", got.CreatedAt))
		})
	})

	Describe("Delete", func() {
		It("reports whether a document existed and is idempotent", func() {
			_, err := driver.Put(ctx, NewDocument("a", "x", nil))
			Expect(err).NotTo(HaveOccurred())

			existed, err := driver.Delete(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeTrue())

			existed, err = driver.Delete(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeFalse())

			_, err = driver.Get(ctx, "a")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("ListIDs", func() {
		It("returns ids in first-insertion order", func() {
			for i := range 5 {
				_, err := driver.Put(ctx, NewDocument(fmt.Sprintf("doc-%d", i), "x", nil))
				Expect(err).NotTo(HaveOccurred())
			}
			_, err := driver.Put(ctx, NewDocument("doc-1", "updated", nil))
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.Delete(ctx, "doc-3")
			Expect(err).NotTo(HaveOccurred())

			ids, err := driver.ListIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"doc-0", "doc-1", "doc-2", "doc-4"}))
		})

		It("returns an empty list for an empty store", func() {
			ids, err := driver.ListIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(BeEmpty())
		})
	})

	Describe("Manifest", func() {
		It("is nil until set and round-trips afterwards", func() {
			m, err := driver.Manifest(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(m).To(BeNil())

			want := &storage.Manifest{
				FormatVersion: storage.FormatVersion,
				Provider:      "hash",
				Model:         "fnv-bigram",
				Dimensions:    3,
				Metric:        "cosine",
				CreatedAt:     time.Now().UTC().Truncate(time.Second),
			}
			Expect(driver.SetManifest(ctx, want)).To(Succeed())

			got, err := driver.Manifest(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Provider).To(Equal(want.Provider))
			Expect(got.Model).To(Equal(want.Model))
			Expect(got.Dimensions).To(Equal(want.Dimensions))
			Expect(got.Metric).To(Equal(want.Metric))
			Expect(got.CreatedAt).To(BeTemporally("==", want.CreatedAt))
		})
	})
}
