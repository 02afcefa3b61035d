package storageutils

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/papercomputeco/docquery/pkg/storage"
	"github.com/papercomputeco/docquery/pkg/storage/filestore"
	"github.com/papercomputeco/docquery/pkg/storage/inmemory"
	"github.com/papercomputeco/docquery/pkg/storage/postgres"
	"github.com/papercomputeco/docquery/pkg/storage/qdrantstore"
	"github.com/papercomputeco/docquery/pkg/storage/sqlite"
)

// Supported driver names.
const (
	DriverFilestore = "filestore"
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverQdrant    = "qdrant"
	DriverInMemory  = "inmemory"
)

// sqliteFile is the database file name under the storage root.
const sqliteFile = "docquery.db"

type NewDriverOpts struct {
	// DriverType is one of the Driver* names.
	DriverType string

	// Root is the storage directory for filestore and sqlite.
	Root string

	// DSN is the connection string for postgres and qdrant. For sqlite it
	// overrides the database path under Root.
	DSN string

	Logger *slog.Logger
}

// Drivers lists the supported driver names.
func Drivers() []string {
	return []string{DriverFilestore, DriverSQLite, DriverPostgres, DriverQdrant, DriverInMemory}
}

func NewDriver(ctx context.Context, o *NewDriverOpts) (storage.Driver, error) {
	switch o.DriverType {
	case DriverFilestore, "":
		if o.Root == "" {
			return nil, fmt.Errorf("filestore driver requires a storage root")
		}
		return filestore.New(o.Root, filestore.WithLogger(o.Logger))

	case DriverSQLite:
		path := o.DSN
		if path == "" {
			if o.Root == "" {
				return nil, fmt.Errorf("sqlite driver requires a storage root or dsn")
			}
			path = filepath.Join(o.Root, sqliteFile)
		}
		return sqlite.NewSQLiteDriver(ctx, path)

	case DriverPostgres:
		if o.DSN == "" {
			return nil, fmt.Errorf("postgres driver requires a dsn")
		}
		return postgres.NewDriver(ctx, o.DSN)

	case DriverQdrant:
		dsn := o.DSN
		if dsn == "" {
			dsn = "qdrant://localhost:6334/" + qdrantstore.DefaultCollection
		}
		cfg, err := qdrantstore.ParseDSN(dsn)
		if err != nil {
			return nil, err
		}
		return qdrantstore.NewDriver(ctx, cfg, o.Logger)

	case DriverInMemory:
		return inmemory.NewDriver(), nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", o.DriverType)
	}
}
