// Package sqlite provides a SQLite-backed storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"entgo.io/ent/dialect"
	_ "github.com/mattn/go-sqlite3"

	entdriver "github.com/papercomputeco/docquery/pkg/storage/ent/driver"
)

// MemoryPath selects a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteDriver implements storage.Driver using SQLite via the ent driver
type SQLiteDriver struct {
	*entdriver.EntDriver
}

// NewSQLiteDriver creates a new SQLite-backed store.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDriver(ctx context.Context, dbPath string) (*SQLiteDriver, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is its own database.
	if dbPath == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	ed, err := entdriver.New(ctx, dialect.SQLite, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteDriver{EntDriver: ed}, nil
}

// dsn enables foreign keys, which ent's migrator requires, and uses a WAL
// journal for file databases so readers don't block the writer.
func dsn(dbPath string) string {
	if dbPath == MemoryPath {
		return "file::memory:?_fk=1"
	}
	return "file:" + dbPath + "?_fk=1&_journal_mode=WAL&_busy_timeout=5000"
}
