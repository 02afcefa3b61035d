// Package filestore is the default storage driver: one JSON record per
// document in a sharded directory tree, written atomically.
//
// Layout under the root directory:
//
//	manifest.json
//	documents/<xx>/<sha256(id)>.json
//
// where <xx> is the first two hex characters of the hash.
package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/papercomputeco/docquery/pkg/logger"
	"github.com/papercomputeco/docquery/pkg/storage"
)

const (
	documentsDir = "documents"
	manifestFile = "manifest.json"
	recordExt    = ".json"
	tmpPattern   = ".record-*.tmp"
)

// ErrCorrupt is returned by New when a record cannot be read back.
var ErrCorrupt = errors.New("corrupt document record")

// Driver implements storage.Driver on the local filesystem.
type Driver struct {
	root   string
	logger *slog.Logger

	// mu guards seqs and lastSeq and serializes writes.
	mu      sync.RWMutex
	seqs    map[string]uint64
	lastSeq uint64
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the driver's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// New opens the store rooted at root, creating it when missing. Every record
// is read once to rebuild the id to sequence map; leftover temp files from an
// interrupted write are removed.
func New(root string, opts ...Option) (*Driver, error) {
	d := &Driver{
		root:   root,
		logger: logger.Nop(),
		seqs:   make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := os.MkdirAll(filepath.Join(root, documentsDir), 0o755); err != nil {
		return nil, storage.Unavailable("create store directory", err)
	}

	if err := d.scan(); err != nil {
		return nil, err
	}

	d.logger.Debug("opened file store", "root", root, "documents", len(d.seqs))
	return d, nil
}

func (d *Driver) scan() error {
	return filepath.WalkDir(filepath.Join(d.root, documentsDir), func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return storage.Unavailable("scan store", err)
		}
		if entry.IsDir() {
			return nil
		}

		name := entry.Name()
		if strings.HasSuffix(name, ".tmp") {
			d.logger.Warn("removing interrupted write", "path", path)
			if err := os.Remove(path); err != nil {
				return storage.Unavailable("remove temp file", err)
			}
			return nil
		}
		if !strings.HasSuffix(name, recordExt) {
			return nil
		}

		doc, err := readRecord(path)
		if err != nil {
			return err
		}
		if d.recordPath(doc.ID) != path {
			return fmt.Errorf("%w: %s does not belong to id %q", ErrCorrupt, path, doc.ID)
		}

		d.seqs[doc.ID] = doc.Seq
		d.lastSeq = max(d.lastSeq, doc.Seq)
		return nil
	})
}

func readRecord(path string) (*storage.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, storage.Unavailable("read record", err)
	}

	var doc storage.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("%w: %s: missing id", ErrCorrupt, path)
	}
	return &doc, nil
}

func (d *Driver) recordPath(id string) string {
	sum := sha256.Sum256([]byte(id))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(d.root, documentsDir, name[:2], name+recordExt)
}

func (d *Driver) Put(ctx context.Context, doc *storage.Document) (*storage.Document, error) {
	if doc == nil {
		return nil, errors.New("cannot store nil document")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	path := d.recordPath(doc.ID)

	var existing *storage.Document
	if _, ok := d.seqs[doc.ID]; ok {
		prev, err := readRecord(path)
		if err != nil {
			return nil, err
		}
		existing = prev
	}

	stored := storage.Merge(doc, existing, d.lastSeq+1)

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return nil, storage.Unavailable("write record", err)
	}

	d.seqs[stored.ID] = stored.Seq
	d.lastSeq = max(d.lastSeq, stored.Seq)
	return stored, nil
}

func (d *Driver) Get(_ context.Context, id string) (*storage.Document, error) {
	d.mu.RLock()
	_, ok := d.seqs[id]
	d.mu.RUnlock()
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	doc, err := readRecord(d.recordPath(id))
	if err != nil {
		// Deleted between the lookup and the read.
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.NotFoundError{ID: id}
		}
		return nil, err
	}
	return doc, nil
}

func (d *Driver) Delete(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seqs[id]; !ok {
		return false, nil
	}

	path := d.recordPath(id)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, storage.Unavailable("remove record", err)
	}
	if err := syncDir(filepath.Dir(path)); err != nil {
		return false, storage.Unavailable("sync directory", err)
	}

	delete(d.seqs, id)
	return true, nil
}

func (d *Driver) ListIDs(_ context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.seqs))
	for id := range d.seqs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return d.seqs[ids[i]] < d.seqs[ids[j]] })
	return ids, nil
}

func (d *Driver) Manifest(_ context.Context) (*storage.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(d.root, manifestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, storage.Unavailable("read manifest", err)
	}

	var m storage.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %w", ErrCorrupt, err)
	}
	return &m, nil
}

func (d *Driver) SetManifest(_ context.Context, m *storage.Manifest) error {
	if m == nil {
		return errors.New("cannot store nil manifest")
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := writeAtomic(filepath.Join(d.root, manifestFile), data); err != nil {
		return storage.Unavailable("write manifest", err)
	}
	return nil
}

func (d *Driver) Close() error {
	return nil
}

// writeAtomic replaces path with data so that a crash leaves either the old
// or the new content: temp file, fsync, rename, fsync of the directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	return syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

var _ storage.Driver = (*Driver)(nil)
