package hash_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/docquery/pkg/embeddings/hash"
	"github.com/papercomputeco/docquery/pkg/vector"
)

var _ = Describe("Embedder", func() {
	var (
		ctx context.Context
		e   *hash.Embedder
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		e, err = hash.NewEmbedder(64)
		Expect(err).NotTo(HaveOccurred())
	})

	It("is deterministic and unit length", func() {
		a, err := e.Embed(ctx, "Cats are small carnivorous mammals")
		Expect(err).NotTo(HaveOccurred())
		b, err := e.Embed(ctx, "Cats are small carnivorous mammals")
		Expect(err).NotTo(HaveOccurred())

		Expect(a).To(Equal(b))
		Expect(a).To(HaveLen(64))
		Expect(vector.Dot(a, a)).To(BeNumerically("~", 1, 1e-5))
	})

	It("ignores case and punctuation", func() {
		a, _ := e.Embed(ctx, "Hello, World!")
		b, _ := e.Embed(ctx, "hello world")
		Expect(a).To(Equal(b))
	})

	It("scores overlapping text above disjoint text", func() {
		q, _ := e.Embed(ctx, "feline biology")
		near, _ := e.Embed(ctx, "notes on feline biology and behavior")
		far, _ := e.Embed(ctx, "quarterly tax filing deadlines")

		Expect(vector.MetricCosine.Similarity(q, near)).To(BeNumerically(">", vector.MetricCosine.Similarity(q, far)))
	})

	It("embeds empty text to the zero vector", func() {
		v, err := e.Embed(ctx, "  ...  ")
		Expect(err).NotTo(HaveOccurred())
		Expect(vector.Dot(v, v)).To(Equal(float32(0)))
	})

	It("defaults the dimension", func() {
		d, err := hash.NewEmbedder(0)
		Expect(err).NotTo(HaveOccurred())
		v, _ := d.Embed(ctx, "x")
		Expect(v).To(HaveLen(hash.DefaultDimensions))
	})
})
