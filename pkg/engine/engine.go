// Package engine is the long-lived retrieval core. It owns the vector
// codec, the document store and the in-memory index, keeps the index and
// the store in agreement, and serves ingest, remove, get and query.
//
// Mutations are serialized. Each one embeds its text before taking any
// lock, then commits the store write and the index update together under
// the write side of the view lock. Queries hold the read side for search
// and result resolution, so a query never observes a half-applied mutation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/papercomputeco/docquery/pkg/eventstream"
	"github.com/papercomputeco/docquery/pkg/eventstream/nop"
	"github.com/papercomputeco/docquery/pkg/index"
	"github.com/papercomputeco/docquery/pkg/index/adaptive"
	"github.com/papercomputeco/docquery/pkg/logger"
	"github.com/papercomputeco/docquery/pkg/storage"
	"github.com/papercomputeco/docquery/pkg/vector"
)

// Engine is safe for concurrent use.
type Engine struct {
	store     storage.Driver
	codec     *vector.Codec
	index     *adaptive.Index
	publisher eventstream.Publisher
	logger    *slog.Logger

	provider    string
	model       string
	maxTopK     int
	defaultTopK int

	// writers admits one mutation at a time; waiting is cancellable.
	writers *semaphore.Weighted

	// view guards the index and the store as one consistent view.
	view sync.RWMutex

	ready atomic.Bool
}

// Open builds the engine: it probes the embedder, checks or records the
// corpus manifest, and rebuilds the index from the store. The engine serves
// nothing until Open returns.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("engine requires a document store")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("engine requires an embedder")
	}

	metric := cfg.Metric
	if metric == "" {
		metric = vector.MetricCosine
	}

	e := &Engine{
		store:       cfg.Store,
		codec:       vector.NewCodec(cfg.Embedder, metric, cfg.Dimensions),
		publisher:   cfg.Publisher,
		logger:      cfg.Logger,
		provider:    cfg.Provider,
		model:       cfg.Model,
		maxTopK:     cfg.MaxTopK,
		defaultTopK: cfg.DefaultTopK,
		writers:     semaphore.NewWeighted(1),
	}
	if e.publisher == nil {
		e.publisher = nop.NewPublisher()
	}
	if e.logger == nil {
		e.logger = logger.Nop()
	}
	if e.maxTopK <= 0 {
		e.maxTopK = DefaultMaxTopK
	}
	if e.defaultTopK <= 0 {
		e.defaultTopK = min(DefaultTopK, e.maxTopK)
	}

	if err := e.codec.Probe(ctx); err != nil {
		return nil, newError("open", "", ErrEmbeddingUnavailable, err)
	}

	if err := e.checkManifest(ctx, cfg.Reindex); err != nil {
		return nil, err
	}

	e.index = adaptive.New(adaptive.Config{
		Metric:     metric,
		Dims:       e.codec.Dimensions(),
		Threshold:  cfg.ApproxThreshold,
		Partitions: cfg.Partitions,
		NProbe:     cfg.NProbe,
		Logger:     e.logger,
	})

	start := time.Now()
	if err := e.rebuild(ctx); err != nil {
		return nil, err
	}

	e.ready.Store(true)
	e.logger.Info("engine ready",
		"documents", e.index.Len(),
		"dimensions", e.codec.Dimensions(),
		"metric", string(metric),
		"strategy", string(e.index.Strategy()),
		"rebuild", time.Since(start),
	)
	return e, nil
}

func (e *Engine) wantManifest() *storage.Manifest {
	return &storage.Manifest{
		FormatVersion: storage.FormatVersion,
		Provider:      e.provider,
		Model:         e.model,
		Dimensions:    e.codec.Dimensions(),
		Metric:        string(e.codec.Metric()),
		CreatedAt:     time.Now().UTC(),
	}
}

func (e *Engine) checkManifest(ctx context.Context, reindex bool) error {
	have, err := e.store.Manifest(ctx)
	if err != nil {
		return newError("open", "", ErrStoreUnavailable, err)
	}
	want := e.wantManifest()

	if have == nil {
		if err := e.store.SetManifest(ctx, want); err != nil {
			return newError("open", "", ErrStoreUnavailable, err)
		}
		return nil
	}

	if have.FormatVersion > storage.FormatVersion {
		return fmt.Errorf("%w: store format %d is newer than supported format %d",
			ErrCorpusMismatch, have.FormatVersion, storage.FormatVersion)
	}

	diff := manifestDiff(have, want)
	if diff == "" {
		return nil
	}
	if !reindex {
		return fmt.Errorf("%w: %s (reindex to re-embed the corpus)", ErrCorpusMismatch, diff)
	}

	e.logger.Warn("corpus identity changed, re-embedding stored documents", "change", diff)
	if err := e.reembed(ctx); err != nil {
		return err
	}

	want.CreatedAt = have.CreatedAt
	if err := e.store.SetManifest(ctx, want); err != nil {
		return newError("open", "", ErrStoreUnavailable, err)
	}
	return nil
}

func manifestDiff(have, want *storage.Manifest) string {
	var diffs []string
	if have.Provider != want.Provider {
		diffs = append(diffs, fmt.Sprintf("provider %q != %q", have.Provider, want.Provider))
	}
	if have.Model != want.Model {
		diffs = append(diffs, fmt.Sprintf("model %q != %q", have.Model, want.Model))
	}
	if have.Dimensions != want.Dimensions {
		diffs = append(diffs, fmt.Sprintf("dimensions %d != %d", have.Dimensions, want.Dimensions))
	}
	if have.Metric != want.Metric {
		diffs = append(diffs, fmt.Sprintf("metric %q != %q", have.Metric, want.Metric))
	}
	return strings.Join(diffs, ", ")
}

func (e *Engine) reembed(ctx context.Context) error {
	ids, err := e.store.ListIDs(ctx)
	if err != nil {
		return newError("reindex", "", ErrStoreUnavailable, err)
	}

	for _, id := range ids {
		doc, err := e.store.Get(ctx, id)
		if storage.IsNotFound(err) {
			continue
		}
		if err != nil {
			return newError("reindex", id, ErrStoreUnavailable, err)
		}
		if strings.TrimSpace(doc.Text) == "" {
			return fmt.Errorf("%w: document %s has no text to re-embed", ErrCorpusMismatch, id)
		}

		v, err := e.codec.Embed(ctx, doc.Text)
		if err != nil {
			return newError("reindex", id, ErrEmbeddingUnavailable, err)
		}
		doc.Vector = v
		if _, err := e.store.Put(ctx, doc); err != nil {
			return newError("reindex", id, ErrStoreUnavailable, err)
		}
	}

	e.logger.Info("re-embedded corpus", "documents", len(ids))
	return nil
}

// rebuild loads every stored document into the index. The store is the
// source of truth; no index state survives a restart.
func (e *Engine) rebuild(ctx context.Context) error {
	ids, err := e.store.ListIDs(ctx)
	if err != nil {
		return newError("rebuild", "", ErrStoreUnavailable, err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		doc, err := e.store.Get(ctx, id)
		if storage.IsNotFound(err) {
			continue
		}
		if err != nil {
			return newError("rebuild", id, ErrStoreUnavailable, err)
		}

		if err := e.index.Insert(entryFor(doc)); err != nil {
			return newError("rebuild", id, ErrStoreUnavailable, err)
		}
	}
	return nil
}

func entryFor(doc *storage.Document) index.Entry {
	return index.Entry{
		ID:       doc.ID,
		Seq:      doc.Seq,
		Vector:   doc.Vector,
		Metadata: doc.Metadata,
	}
}

// lockWriters waits for the mutation slot. The slot is not held when the
// engine was closed while waiting.
func (e *Engine) lockWriters(ctx context.Context, op, id string) error {
	if err := e.writers.Acquire(ctx, 1); err != nil {
		return newError(op, id, ErrStoreUnavailable, err)
	}
	if err := e.checkReady(op, id); err != nil {
		e.writers.Release(1)
		return err
	}
	return nil
}

func (e *Engine) checkReady(op, id string) error {
	if !e.ready.Load() {
		return newError(op, id, ErrStoreUnavailable, errors.New("engine is not ready"))
	}
	return nil
}

// Ingest stores doc, replacing any document with the same ID, and makes it
// searchable. The text is embedded unless doc carries a vector.
func (e *Engine) Ingest(ctx context.Context, doc *storage.Document) (*storage.Document, error) {
	const op = "ingest"

	if doc == nil {
		return nil, invalidf(op, "", ErrInvalidDocument, "document is required")
	}
	if err := e.checkReady(op, doc.ID); err != nil {
		return nil, err
	}

	prepared, err := e.prepare(ctx, doc)
	if err != nil {
		return nil, err
	}

	if err := e.lockWriters(ctx, op, doc.ID); err != nil {
		return nil, err
	}
	stored, size, err := e.commitPut(ctx, prepared)
	e.writers.Release(1)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("ingested document", "id", stored.ID, "seq", stored.Seq)
	e.publish(ctx, eventstream.EventTypeDocumentUpserted, eventstream.DocumentRef{
		ID:       stored.ID,
		Seq:      stored.Seq,
		Metadata: stored.Metadata,
	}, size)
	return stored, nil
}

// prepare validates doc and embeds it. It takes no locks.
func (e *Engine) prepare(ctx context.Context, doc *storage.Document) (*storage.Document, error) {
	const op = "ingest"

	if strings.TrimSpace(doc.ID) == "" {
		return nil, invalidf(op, "", ErrInvalidDocument, "id is required")
	}

	meta, err := storage.NormalizeMetadata(doc.Metadata)
	if err != nil {
		return nil, newError(op, doc.ID, ErrInvalidDocument, err)
	}

	out := &storage.Document{
		ID:        doc.ID,
		Text:      doc.Text,
		Metadata:  meta,
		CreatedAt: doc.CreatedAt,
	}

	if doc.Vector != nil {
		if err := vector.Validate(doc.Vector, e.codec.Dimensions()); err != nil {
			return nil, newError(op, doc.ID, ErrInvalidDocument, err)
		}
		out.Vector = append([]float32(nil), doc.Vector...)
		return out, nil
	}

	if strings.TrimSpace(doc.Text) == "" {
		return nil, invalidf(op, doc.ID, ErrInvalidDocument, "text or vector is required")
	}

	v, err := e.codec.Embed(ctx, doc.Text)
	if err != nil {
		return nil, newError(op, doc.ID, ErrEmbeddingUnavailable, err)
	}
	out.Vector = v
	return out, nil
}

func (e *Engine) commitPut(ctx context.Context, doc *storage.Document) (*storage.Document, int, error) {
	e.view.Lock()
	defer e.view.Unlock()

	prev, err := e.store.Get(ctx, doc.ID)
	if err != nil && !storage.IsNotFound(err) {
		return nil, 0, newError("ingest", doc.ID, ErrStoreUnavailable, err)
	}

	stored, err := e.store.Put(ctx, doc)
	if err != nil {
		return nil, 0, newError("ingest", doc.ID, ErrStoreUnavailable, err)
	}

	if err := e.index.Insert(entryFor(stored)); err != nil {
		// The vector was validated in prepare, so this is a store that
		// returned something other than what it was given. The index still
		// holds prev, so the store goes back to prev as well.
		if rbErr := e.restore(ctx, doc.ID, prev); rbErr != nil {
			e.logger.Error("store and index disagree after a failed ingest",
				"id", doc.ID,
				logger.Err(rbErr),
			)
			err = errors.Join(err, rbErr)
		}
		return nil, 0, newError("ingest", doc.ID, ErrStoreUnavailable, err)
	}
	return stored, e.index.Len(), nil
}

// restore puts back the stored version of id that preceded a failed commit,
// or deletes id when there was none.
func (e *Engine) restore(ctx context.Context, id string, prev *storage.Document) error {
	if prev == nil {
		_, err := e.store.Delete(ctx, id)
		return err
	}
	_, err := e.store.Put(ctx, prev)
	return err
}

// Remove deletes the document for id and reports whether it existed.
// Removing an unknown id is not an error.
func (e *Engine) Remove(ctx context.Context, id string) (bool, error) {
	const op = "remove"

	if strings.TrimSpace(id) == "" {
		return false, invalidf(op, "", ErrInvalidDocument, "id is required")
	}
	if err := e.checkReady(op, id); err != nil {
		return false, err
	}

	if err := e.lockWriters(ctx, op, id); err != nil {
		return false, err
	}
	existed, size, err := e.commitDelete(ctx, id)
	e.writers.Release(1)
	if err != nil {
		return false, err
	}

	if existed {
		e.logger.Debug("removed document", "id", id)
		e.publish(ctx, eventstream.EventTypeDocumentDeleted, eventstream.DocumentRef{ID: id}, size)
	}
	return existed, nil
}

func (e *Engine) commitDelete(ctx context.Context, id string) (bool, int, error) {
	e.view.Lock()
	defer e.view.Unlock()

	existed, err := e.store.Delete(ctx, id)
	if err != nil {
		return false, 0, newError("remove", id, ErrStoreUnavailable, err)
	}

	indexed := e.index.Remove(id)
	return existed || indexed, e.index.Len(), nil
}

// Get returns the stored document for id.
func (e *Engine) Get(ctx context.Context, id string) (*storage.Document, error) {
	const op = "get"

	if err := e.checkReady(op, id); err != nil {
		return nil, err
	}

	e.view.RLock()
	defer e.view.RUnlock()

	doc, err := e.store.Get(ctx, id)
	if storage.IsNotFound(err) {
		return nil, newError(op, id, ErrNotFound, err)
	}
	if err != nil {
		return nil, newError(op, id, ErrStoreUnavailable, err)
	}
	return doc, nil
}

// List returns every document id in insertion order.
func (e *Engine) List(ctx context.Context) ([]string, error) {
	if err := e.checkReady("list", ""); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.view.RLock()
	defer e.view.RUnlock()
	return e.index.IDs(), nil
}

// Each calls fn with every stored document in insertion order while holding
// a consistent view; mutations wait until it returns.
func (e *Engine) Each(ctx context.Context, fn func(*storage.Document) error) error {
	const op = "each"

	if err := e.checkReady(op, ""); err != nil {
		return err
	}

	e.view.RLock()
	defer e.view.RUnlock()

	for _, id := range e.index.IDs() {
		if err := ctx.Err(); err != nil {
			return err
		}

		doc, err := e.store.Get(ctx, id)
		if storage.IsNotFound(err) {
			continue
		}
		if err != nil {
			return newError(op, id, ErrStoreUnavailable, err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

// Health reports readiness and corpus statistics.
type Health struct {
	Ready      bool   `json:"ready"`
	CorpusSize int    `json:"corpus_size"`
	Dimensions int    `json:"dimensions"`
	Metric     string `json:"metric"`
	Strategy   string `json:"strategy"`
	Provider   string `json:"provider,omitempty"`
	Model      string `json:"model,omitempty"`
}

func (e *Engine) Health(_ context.Context) Health {
	h := Health{
		Ready:      e.ready.Load(),
		Dimensions: e.codec.Dimensions(),
		Metric:     string(e.codec.Metric()),
		Provider:   e.provider,
		Model:      e.model,
	}

	e.view.RLock()
	h.CorpusSize = e.index.Len()
	h.Strategy = string(e.index.Strategy())
	e.view.RUnlock()

	return h
}

// DefaultTopK is the result count the facades use when a query omits one.
func (e *Engine) DefaultTopK() int {
	return e.defaultTopK
}

// MaxTopK is the largest result count a query can return.
func (e *Engine) MaxTopK() int {
	return e.maxTopK
}

// Manifest describes the corpus identity the engine serves.
func (e *Engine) Manifest() *storage.Manifest {
	return e.wantManifest()
}

// Dimensions is the corpus vector length.
func (e *Engine) Dimensions() int {
	return e.codec.Dimensions()
}

func (e *Engine) publish(ctx context.Context, eventType string, ref eventstream.DocumentRef, size int) {
	event := eventstream.NewDocumentEvent(eventType, ref, size)
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("failed to publish document event",
			"event_type", eventType,
			"id", ref.ID,
			logger.Err(err),
		)
	}
}

// Close stops serving and releases the store, embedder and publisher.
func (e *Engine) Close() error {
	if !e.ready.CompareAndSwap(true, false) {
		return nil
	}

	// Wait for an in-flight mutation to finish.
	_ = e.writers.Acquire(context.Background(), 1)
	defer e.writers.Release(1)

	e.view.Lock()
	defer e.view.Unlock()

	return errors.Join(
		e.publisher.Close(),
		e.codec.Close(),
		e.store.Close(),
	)
}
