package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/docquery/pkg/storage"
	"github.com/papercomputeco/docquery/pkg/storage/inmemory"
	"github.com/papercomputeco/docquery/pkg/storage/storagetest"
)

var _ = Describe("Driver", func() {
	storagetest.DescribeDriver(func() storage.Driver {
		return inmemory.NewDriver()
	})

	It("hands out copies so callers cannot mutate stored documents", func() {
		d := inmemory.NewDriver()
		ctx := context.Background()

		_, err := d.Put(ctx, storagetest.NewDocument("a", "x", map[string]any{"k": "v"}))
		Expect(err).NotTo(HaveOccurred())

		got, err := d.Get(ctx, "a")
		Expect(err).NotTo(HaveOccurred())
		got.Metadata["k"] = "changed"
		got.Vector[0] = 99

		again, err := d.Get(ctx, "a")
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Metadata["k"]).To(Equal("v"))
		Expect(again.Vector[0]).To(Equal(float32(0.25)))
	})
})
