// Package inmemory provides a map-backed storage.Driver for tests and
// ephemeral runs. Nothing survives the process.
package inmemory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/papercomputeco/docquery/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the mapping of documents
	mu sync.RWMutex

	docs     map[string]*storage.Document
	manifest *storage.Manifest
	lastSeq  uint64
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		docs: make(map[string]*storage.Document),
	}
}

func (d *Driver) Put(_ context.Context, doc *storage.Document) (*storage.Document, error) {
	if doc == nil {
		return nil, errors.New("cannot store nil document")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	stored := storage.Merge(doc, d.docs[doc.ID], d.lastSeq+1)
	if stored.Seq > d.lastSeq {
		d.lastSeq = stored.Seq
	}
	d.docs[doc.ID] = stored

	return stored.Clone(), nil
}

func (d *Driver) Get(_ context.Context, id string) (*storage.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	doc, ok := d.docs[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	return doc.Clone(), nil
}

func (d *Driver) Delete(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.docs[id]
	delete(d.docs, id)
	return ok, nil
}

func (d *Driver) ListIDs(_ context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	docs := make([]*storage.Document, 0, len(d.docs))
	for _, doc := range d.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Seq < docs[j].Seq })

	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	return ids, nil
}

func (d *Driver) Manifest(_ context.Context) (*storage.Manifest, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.manifest == nil {
		return nil, nil
	}
	m := *d.manifest
	return &m, nil
}

func (d *Driver) SetManifest(_ context.Context, m *storage.Manifest) error {
	if m == nil {
		return errors.New("cannot store nil manifest")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *m
	d.manifest = &cp
	return nil
}

func (d *Driver) Close() error {
	return nil
}

var _ storage.Driver = (*Driver)(nil)
