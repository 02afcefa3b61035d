package sqlite_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/docquery/pkg/storage"
	"github.com/papercomputeco/docquery/pkg/storage/sqlite"
	"github.com/papercomputeco/docquery/pkg/storage/storagetest"
)

var _ = Describe("SQLiteDriver", func() {
	Context("in memory", func() {
		storagetest.DescribeDriver(func() storage.Driver {
			d, err := sqlite.NewSQLiteDriver(context.Background(), sqlite.MemoryPath)
			Expect(err).NotTo(HaveOccurred())
			return d
		})
	})

	Context("on disk", func() {
		storagetest.DescribeDriver(func() storage.Driver {
			d, err := sqlite.NewSQLiteDriver(context.Background(), filepath.Join(GinkgoT().TempDir(), "docs.db"))
			Expect(err).NotTo(HaveOccurred())
			return d
		})
	})

	Describe("NewSQLiteDriver", func() {
		It("creates the database file", func() {
			dbPath := filepath.Join(GinkgoT().TempDir(), "test.db")

			s, err := sqlite.NewSQLiteDriver(context.Background(), dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()

			_, err = os.Stat(dbPath)
			Expect(err).NotTo(HaveOccurred())
		})

		It("keeps documents and sequence numbers across reopen", func() {
			ctx := context.Background()
			dbPath := filepath.Join(GinkgoT().TempDir(), "reopen.db")

			s, err := sqlite.NewSQLiteDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			first, err := s.Put(ctx, storagetest.NewDocument("a", "alpha", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Close()).To(Succeed())

			s, err = sqlite.NewSQLiteDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()

			got, err := s.Get(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Text).To(Equal("alpha"))

			second, err := s.Put(ctx, storagetest.NewDocument("b", "beta", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Seq).To(BeNumerically(">", first.Seq))

			ids, err := s.ListIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"a", "b"}))
		})
	})
})
