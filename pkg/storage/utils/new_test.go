package storageutils_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/docquery/pkg/storage/filestore"
	"github.com/papercomputeco/docquery/pkg/storage/inmemory"
	"github.com/papercomputeco/docquery/pkg/storage/sqlite"
	storageutils "github.com/papercomputeco/docquery/pkg/storage/utils"
)

var _ = Describe("NewDriver", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("defaults to the file store", func() {
		d, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{Root: GinkgoT().TempDir()})
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()
		Expect(d).To(BeAssignableToTypeOf(&filestore.Driver{}))
	})

	It("places the sqlite database under the storage root", func() {
		root := GinkgoT().TempDir()
		d, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{
			DriverType: storageutils.DriverSQLite,
			Root:       root,
		})
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()
		Expect(d).To(BeAssignableToTypeOf(&sqlite.SQLiteDriver{}))

		_, err = os.Stat(filepath.Join(root, "docquery.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("builds the in-memory driver", func() {
		d, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{DriverType: storageutils.DriverInMemory})
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(BeAssignableToTypeOf(&inmemory.Driver{}))
	})

	It("requires a dsn for postgres", func() {
		_, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{DriverType: storageutils.DriverPostgres})
		Expect(err).To(MatchError(ContainSubstring("requires a dsn")))
	})

	It("rejects unknown drivers", func() {
		_, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{DriverType: "mongo"})
		Expect(err).To(MatchError(ContainSubstring("unsupported storage driver")))
	})
})
