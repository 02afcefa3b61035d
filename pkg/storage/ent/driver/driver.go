// Package entdriver implements storage.Driver on top of database/sql using
// ent's dialect-aware SQL builder. It is database-agnostic and is embedded
// by the sqlite and postgres drivers.
package entdriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	entschema "entgo.io/ent/dialect/sql/schema"

	"github.com/papercomputeco/docquery/pkg/storage"
	"github.com/papercomputeco/docquery/pkg/storage/ent/schema"
	"github.com/papercomputeco/docquery/pkg/vector"
)

// EntDriver provides storage operations over a migrated SQL database.
type EntDriver struct {
	db      *sql.DB
	dialect string

	// mu guards lastSeq and orders Put calls so sequence numbers are unique.
	mu      sync.Mutex
	lastSeq uint64
}

// New migrates the schema on db and loads the current sequence high-water
// mark. dialectName is one of entgo.io/ent/dialect's names.
func New(ctx context.Context, dialectName string, db *sql.DB) (*EntDriver, error) {
	migrate, err := entschema.NewMigrate(entsql.OpenDB(dialectName, db))
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := migrate.Create(ctx, schema.Tables...); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	ed := &EntDriver{
		db:      db,
		dialect: dialectName,
	}

	seqs, err := ed.scanSeqs(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range seqs {
		ed.lastSeq = max(ed.lastSeq, s.seq)
	}

	return ed, nil
}

// DB exposes the underlying connection pool.
func (ed *EntDriver) DB() *sql.DB {
	return ed.db
}

func (ed *EntDriver) builder() *entsql.DialectBuilder {
	return entsql.Dialect(ed.dialect)
}

// Put upserts the document inside a transaction.
func (ed *EntDriver) Put(ctx context.Context, doc *storage.Document) (*storage.Document, error) {
	if doc == nil {
		return nil, errors.New("cannot store nil document")
	}

	ed.mu.Lock()
	defer ed.mu.Unlock()

	tx, err := ed.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storage.Unavailable("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := ed.get(ctx, tx, doc.ID)
	if err != nil && !storage.IsNotFound(err) {
		return nil, err
	}

	stored := storage.Merge(doc, existing, ed.lastSeq+1)

	meta, err := storage.EncodeMetadata(stored.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query, args := ed.builder().Insert(schema.DocumentsTableName).
		Columns(schema.DocumentColumns()...).
		Values(
			stored.ID,
			int64(stored.Seq),
			stored.Text,
			string(meta),
			vector.Encode(stored.Vector),
			stored.CreatedAt,
			stored.UpdatedAt,
		).
		OnConflict(
			entsql.ConflictColumns(schema.ColumnID),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, storage.Unavailable("upsert document", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storage.Unavailable("commit document", err)
	}

	if stored.Seq > ed.lastSeq {
		ed.lastSeq = stored.Seq
	}
	return stored, nil
}

// Get retrieves a document by id.
func (ed *EntDriver) Get(ctx context.Context, id string) (*storage.Document, error) {
	return ed.get(ctx, ed.db, id)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (ed *EntDriver) get(ctx context.Context, q queryer, id string) (*storage.Document, error) {
	query, args := ed.builder().Select(schema.DocumentColumns()...).
		From(entsql.Table(schema.DocumentsTableName)).
		Where(entsql.EQ(schema.ColumnID, id)).
		Query()

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Unavailable("query document", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, storage.Unavailable("query document", err)
		}
		return nil, storage.NotFoundError{ID: id}
	}

	doc, err := scanDocument(rows)
	if err != nil {
		return nil, err
	}
	return doc, rows.Err()
}

func scanDocument(rows *sql.Rows) (*storage.Document, error) {
	var (
		doc       storage.Document
		seq       int64
		meta      []byte
		vec       []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := rows.Scan(&doc.ID, &seq, &doc.Text, &meta, &vec, &createdAt, &updatedAt); err != nil {
		return nil, storage.Unavailable("scan document", err)
	}

	metadata, err := storage.DecodeMetadata(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to decode metadata for %s: %w", doc.ID, err)
	}
	v, err := vector.Decode(vec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode vector for %s: %w", doc.ID, err)
	}

	doc.Seq = uint64(seq)
	doc.Metadata = metadata
	doc.Vector = v
	doc.CreatedAt = createdAt.UTC()
	doc.UpdatedAt = updatedAt.UTC()
	return &doc, nil
}

// Delete removes a document by id.
func (ed *EntDriver) Delete(ctx context.Context, id string) (bool, error) {
	query, args := ed.builder().Delete(schema.DocumentsTableName).
		Where(entsql.EQ(schema.ColumnID, id)).
		Query()

	res, err := ed.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, storage.Unavailable("delete document", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storage.Unavailable("delete document", err)
	}
	return n > 0, nil
}

type idSeq struct {
	id  string
	seq uint64
}

func (ed *EntDriver) scanSeqs(ctx context.Context) ([]idSeq, error) {
	query, args := ed.builder().Select(schema.ColumnID, schema.ColumnSeq).
		From(entsql.Table(schema.DocumentsTableName)).
		Query()

	rows, err := ed.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Unavailable("list documents", err)
	}
	defer rows.Close()

	var out []idSeq
	for rows.Next() {
		var (
			id  string
			seq int64
		)
		if err := rows.Scan(&id, &seq); err != nil {
			return nil, storage.Unavailable("scan document id", err)
		}
		out = append(out, idSeq{id: id, seq: uint64(seq)})
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("list documents", err)
	}
	return out, nil
}

// ListIDs returns all ids ordered by sequence.
func (ed *EntDriver) ListIDs(ctx context.Context) ([]string, error) {
	seqs, err := ed.scanSeqs(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i].seq < seqs[j].seq })

	ids := make([]string, len(seqs))
	for i, s := range seqs {
		ids[i] = s.id
	}
	return ids, nil
}

// Manifest returns the stored manifest row, or nil when none exists.
func (ed *EntDriver) Manifest(ctx context.Context) (*storage.Manifest, error) {
	query, args := ed.builder().Select(
		schema.ColumnFormatVersion,
		schema.ColumnProvider,
		schema.ColumnModel,
		schema.ColumnDimensions,
		schema.ColumnMetric,
		schema.ColumnCreatedAt,
	).
		From(entsql.Table(schema.ManifestTableName)).
		Where(entsql.EQ(schema.ColumnID, schema.ManifestRowID)).
		Query()

	rows, err := ed.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Unavailable("query manifest", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, storage.Unavailable("query manifest", err)
		}
		return nil, nil
	}

	var m storage.Manifest
	if err := rows.Scan(&m.FormatVersion, &m.Provider, &m.Model, &m.Dimensions, &m.Metric, &m.CreatedAt); err != nil {
		return nil, storage.Unavailable("scan manifest", err)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, rows.Err()
}

// SetManifest upserts the single manifest row.
func (ed *EntDriver) SetManifest(ctx context.Context, m *storage.Manifest) error {
	if m == nil {
		return errors.New("cannot store nil manifest")
	}

	query, args := ed.builder().Insert(schema.ManifestTableName).
		Columns(
			schema.ColumnID,
			schema.ColumnFormatVersion,
			schema.ColumnProvider,
			schema.ColumnModel,
			schema.ColumnDimensions,
			schema.ColumnMetric,
			schema.ColumnCreatedAt,
		).
		Values(schema.ManifestRowID, m.FormatVersion, m.Provider, m.Model, m.Dimensions, m.Metric, m.CreatedAt).
		OnConflict(
			entsql.ConflictColumns(schema.ColumnID),
			entsql.ResolveWithNewValues(),
		).
		Query()

	if _, err := ed.db.ExecContext(ctx, query, args...); err != nil {
		return storage.Unavailable("store manifest", err)
	}
	return nil
}

// Close closes the database connection pool.
func (ed *EntDriver) Close() error {
	return ed.db.Close()
}

var _ storage.Driver = (*EntDriver)(nil)
