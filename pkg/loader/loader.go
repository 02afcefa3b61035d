// Package loader keeps the corpus in step with a directory of markdown
// files. Each file is split into heading-delimited chunks and every chunk
// becomes one document.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/docquery/pkg/logger"
	"github.com/papercomputeco/docquery/pkg/storage"
)

const (
	markdownExt = ".md"

	// DefaultDebounce is how long Watch waits for changes to settle.
	DefaultDebounce = 500 * time.Millisecond

	// DefaultConcurrency bounds parallel chunk ingestion.
	DefaultConcurrency = 4
)

// Corpus is the part of the engine the loader writes to.
type Corpus interface {
	Ingest(ctx context.Context, doc *storage.Document) (*storage.Document, error)
	Remove(ctx context.Context, id string) (bool, error)
	Each(ctx context.Context, fn func(*storage.Document) error) error
}

// Loader syncs markdown files into a Corpus.
type Loader struct {
	corpus      Corpus
	logger      *slog.Logger
	debounce    time.Duration
	concurrency int
}

// Option configures a Loader.
type Option func(*Loader)

func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

func WithDebounce(d time.Duration) Option {
	return func(ld *Loader) {
		ld.debounce = d
	}
}

func WithConcurrency(n int) Option {
	return func(ld *Loader) {
		if n > 0 {
			ld.concurrency = n
		}
	}
}

func New(corpus Corpus, opts ...Option) *Loader {
	ld := &Loader{
		corpus:      corpus,
		logger:      logger.Nop(),
		debounce:    DefaultDebounce,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// Report summarizes one Sync.
type Report struct {
	Files    int `json:"files"`
	Skipped  int `json:"skipped"`
	Ingested int `json:"ingested"`
	Removed  int `json:"removed"`
}

// fileState is what the corpus remembers about one source file.
type fileState struct {
	hash   string
	size   int64
	mtime  int64
	total  int64
	chunks []string

	// complete is false when the stored chunks disagree on the file
	// version or some chunks of that version are missing, as happens when
	// a sync failed partway.
	complete bool
}

func (st *fileState) matches(hash string, size, mtime, total int64) bool {
	return st.hash == hash && st.size == size && st.mtime == mtime && st.total == total
}

// Sync ingests every markdown file directly inside dir. Files whose size,
// modification time and content hash match a complete set of stored chunks
// are skipped.
// Chunks of deleted files, and trailing chunks of files that shrank, are
// removed.
func (ld *Loader) Sync(ctx context.Context, dir string) (*Report, error) {
	files, err := markdownFiles(dir)
	if err != nil {
		return nil, err
	}

	known, err := ld.state(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{Files: len(files)}
	for _, path := range files {
		name := filepath.Base(path)
		prev := known[name]
		delete(known, name)

		ingested, removed, err := ld.syncFile(ctx, path, prev)
		if err != nil {
			return report, err
		}
		if ingested == 0 && removed == 0 {
			report.Skipped++
		}
		report.Ingested += ingested
		report.Removed += removed
	}

	for name, st := range known {
		ld.logger.Info("removing chunks of deleted file", "file", name, "chunks", len(st.chunks))
		n, err := ld.remove(ctx, st.chunks)
		report.Removed += n
		if err != nil {
			return report, err
		}
	}

	ld.logger.Info("synced markdown directory",
		"dir", dir,
		"files", report.Files,
		"skipped", report.Skipped,
		"ingested", report.Ingested,
		"removed", report.Removed,
	)
	return report, nil
}

func markdownFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading source directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), markdownExt) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// state collects what the corpus holds for each source file.
func (ld *Loader) state(ctx context.Context) (map[string]*fileState, error) {
	known := make(map[string]*fileState)
	err := ld.corpus.Each(ctx, func(doc *storage.Document) error {
		name, ok := doc.Metadata[KeyFilename].(string)
		if !ok {
			return nil
		}
		hash, ok := doc.Metadata[KeyFileHash].(string)
		if !ok {
			return nil
		}

		size, _ := doc.Metadata[KeyFileSize].(int64)
		mtime, _ := doc.Metadata[KeyFileMtime].(int64)
		total, _ := doc.Metadata[KeyFileChunks].(int64)

		st := known[name]
		if st == nil {
			st = &fileState{hash: hash, size: size, mtime: mtime, total: total, complete: true}
			known[name] = st
		} else if !st.matches(hash, size, mtime, total) {
			st.complete = false
		}
		st.chunks = append(st.chunks, doc.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading corpus state: %w", err)
	}

	for _, st := range known {
		if int64(len(st.chunks)) != st.total {
			st.complete = false
		}
	}
	return known, nil
}

func (ld *Loader) syncFile(ctx context.Context, path string, prev *fileState) (int, int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if prev != nil && prev.complete && prev.size == info.Size() && prev.mtime == info.ModTime().UnixNano() {
		return 0, 0, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("reading %s: %w", path, err)
	}
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])
	if prev != nil && prev.complete && prev.hash == hash {
		return 0, 0, nil
	}

	name := filepath.Base(path)
	chunks, err := Parse(name, content)
	if err != nil {
		return 0, 0, err
	}
	ld.logger.Debug("ingesting markdown file", "file", name, "chunks", len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ld.concurrency)
	keep := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		keep[c.ID()] = true

		meta := c.Metadata()
		meta[KeyFileHash] = hash
		meta[KeyFileSize] = info.Size()
		meta[KeyFileMtime] = info.ModTime().UnixNano()
		meta[KeyFileChunks] = int64(len(chunks))
		doc := &storage.Document{ID: c.ID(), Text: c.Content, Metadata: meta}

		g.Go(func() error {
			_, err := ld.corpus.Ingest(gctx, doc)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, fmt.Errorf("ingesting %s: %w", name, err)
	}

	var stale []string
	if prev != nil {
		for _, id := range prev.chunks {
			if !keep[id] {
				stale = append(stale, id)
			}
		}
	}
	removed, err := ld.remove(ctx, stale)
	return len(chunks), removed, err
}

func (ld *Loader) remove(ctx context.Context, ids []string) (int, error) {
	n := 0
	for _, id := range ids {
		existed, err := ld.corpus.Remove(ctx, id)
		if err != nil {
			return n, fmt.Errorf("removing %s: %w", id, err)
		}
		if existed {
			n++
		}
	}
	return n, nil
}

// Watch syncs dir once and then again whenever a markdown file in it
// changes, until ctx ends. Bursts of events are coalesced.
func (ld *Loader) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating source watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching source dir: %w", err)
	}

	if _, err := ld.Sync(ctx, dir); err != nil && !errors.Is(err, context.Canceled) {
		ld.logger.Error("initial sync failed", logger.Err(err))
	}

	timer := time.NewTimer(ld.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(event.Name), markdownExt) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(ld.debounce)
		case <-timer.C:
			if _, err := ld.Sync(ctx, dir); err != nil && !errors.Is(err, context.Canceled) {
				ld.logger.Error("sync failed", logger.Err(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			ld.logger.Warn("source watcher error", logger.Err(err))
		}
	}
}

// Documents returns the distinct source file names in the corpus, sorted.
func (ld *Loader) Documents(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	err := ld.corpus.Each(ctx, func(doc *storage.Document) error {
		if name, ok := doc.Metadata[KeyFilename].(string); ok {
			seen[name] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Heading is one distinct heading path of a source file.
type Heading struct {
	// Level is 2, 3 or 4: the depth of the deepest named heading. Zero means
	// the chunk precedes the first heading.
	Level int    `json:"level"`
	Title string `json:"title"`
	H2    string `json:"heading_h2"`
	H3    string `json:"heading_h3"`
	H4    string `json:"heading_h4"`
}

// ErrUnknownDocument is returned by Headings for a file with no chunks.
var ErrUnknownDocument = errors.New("unknown document")

// Headings returns the distinct heading paths of filename in chunk order.
func (ld *Loader) Headings(ctx context.Context, filename string) ([]Heading, error) {
	type chunkHeading struct {
		ordinal int64
		h       Heading
	}

	var found []chunkHeading
	err := ld.corpus.Each(ctx, func(doc *storage.Document) error {
		if doc.Metadata[KeyFilename] != filename {
			return nil
		}
		ordinal, _ := doc.Metadata[KeyChunk].(int64)
		found = append(found, chunkHeading{ordinal: ordinal, h: headingOf(doc.Metadata)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, filename)
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].ordinal < found[j].ordinal })

	seen := make(map[[3]string]bool)
	var out []Heading
	for _, f := range found {
		key := [3]string{f.h.H2, f.h.H3, f.h.H4}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f.h)
	}
	return out, nil
}

func headingOf(meta map[string]any) Heading {
	h := Heading{}
	h.H2, _ = meta[KeyHeadingH2].(string)
	h.H3, _ = meta[KeyHeadingH3].(string)
	h.H4, _ = meta[KeyHeadingH4].(string)

	for i, title := range []string{h.H2, h.H3, h.H4} {
		if title != "" && title != DefaultHeading {
			h.Level = i + 2
			h.Title = title
		}
	}
	return h
}
