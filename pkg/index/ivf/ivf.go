// Package ivf implements an approximate inverted-file index. Vectors are
// partitioned around k-means centroids and a search scans only the nprobe
// partitions closest to the query.
package ivf

import (
	"context"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/docquery/pkg/filter"
	"github.com/papercomputeco/docquery/pkg/index"
	"github.com/papercomputeco/docquery/pkg/vector"
)

const (
	DefaultNProbe   = 8
	DefaultMinTrain = 256
	defaultMaxIter  = 25
	defaultSeed     = 1
)

type Config struct {
	Metric vector.Metric
	Dims   int

	// Partitions is the number of centroids. Zero picks sqrt(n) at each
	// training.
	Partitions int

	// NProbe is how many partitions a search scans.
	NProbe int

	// MinTrain is the entry count below which the index is not trained and
	// searches scan every entry.
	MinTrain int
}

type Index struct {
	cfg   Config
	table *index.Table

	centroids  [][]float32
	partitions []*roaring.Bitmap
	assigned   map[uint32]int

	// trainedAt is the entry count at the last training. The index retrains
	// once it has doubled.
	trainedAt int
}

func New(cfg Config) *Index {
	if cfg.NProbe <= 0 {
		cfg.NProbe = DefaultNProbe
	}
	if cfg.MinTrain <= 0 {
		cfg.MinTrain = DefaultMinTrain
	}

	return &Index{
		cfg:      cfg,
		table:    index.NewTable(cfg.Metric, cfg.Dims),
		assigned: make(map[uint32]int),
	}
}

func (x *Index) Insert(e index.Entry) error {
	n, err := x.table.Put(e)
	if err != nil {
		return err
	}

	if x.trained() {
		x.unassign(n)
		x.assign(n)
	}

	if x.table.Len() >= x.cfg.MinTrain && (x.trainedAt == 0 || x.table.Len() >= 2*x.trainedAt) {
		x.retrain()
	}
	return nil
}

func (x *Index) Remove(id string) bool {
	n, ok := x.table.Delete(id)
	if ok {
		x.unassign(n)
	}
	return ok
}

// Search scans the NProbe partitions nearest the query in parallel and
// merges their best hits. An untrained index scans every entry.
func (x *Index) Search(ctx context.Context, query []float32, topK int, f filter.Filter) ([]index.Hit, error) {
	prepared, err := x.table.Prepare(query)
	if err != nil {
		return nil, err
	}

	candidates := x.table.Candidates(f)
	if !x.trained() {
		return x.scan(ctx, candidates, prepared, topK, f)
	}

	probes := closest(prepared, x.centroids, x.cfg.NProbe)
	partial := make([]*index.Collector, len(probes))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range probes {
		g.Go(func() error {
			c := index.NewCollector(topK)
			it := roaring.And(x.partitions[p], candidates).Iterator()
			for it.HasNext() {
				if err := gctx.Err(); err != nil {
					return err
				}
				n := it.Next()
				if x.table.Match(n, f) {
					c.Offer(x.table.Score(n, prepared))
				}
			}
			partial[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := index.NewCollector(topK)
	for _, c := range partial {
		merged.Merge(c)
	}
	return merged.Results(), nil
}

func (x *Index) scan(ctx context.Context, candidates *roaring.Bitmap, prepared []float32, topK int, f filter.Filter) ([]index.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := index.NewCollector(topK)
	it := candidates.Iterator()
	for it.HasNext() {
		n := it.Next()
		if x.table.Match(n, f) {
			c.Offer(x.table.Score(n, prepared))
		}
	}
	return c.Results(), nil
}

func (x *Index) Len() int {
	return x.table.Len()
}

func (x *Index) IDs() []string {
	return x.table.IDs()
}

// Entries returns every entry in insertion order.
func (x *Index) Entries() []index.Entry {
	return x.table.Entries()
}

// Partitions returns the number of trained partitions, zero when untrained.
func (x *Index) Partitions() int {
	return len(x.centroids)
}

func (x *Index) trained() bool {
	return len(x.centroids) > 0
}

func (x *Index) retrain() {
	entries := x.table.Entries()
	vectors := make([][]float32, len(entries))
	slots := make([]uint32, len(entries))
	for i, e := range entries {
		n, _ := x.table.Slot(e.ID)
		slots[i] = n
		vectors[i] = x.table.Prepared(n)
	}

	k := x.cfg.Partitions
	if k <= 0 {
		k = int(math.Sqrt(float64(len(entries))))
	}

	centroids := train(vectors, k, defaultMaxIter, defaultSeed)
	if x.cfg.Metric == vector.MetricCosine {
		for _, c := range centroids {
			vector.NormalizeL2InPlace(c)
		}
	}

	x.centroids = centroids
	x.partitions = make([]*roaring.Bitmap, len(centroids))
	for i := range x.partitions {
		x.partitions[i] = roaring.New()
	}
	clear(x.assigned)
	for _, n := range slots {
		x.assign(n)
	}
	x.trainedAt = len(entries)
}

func (x *Index) assign(n uint32) {
	p := nearest(x.table.Prepared(n), x.centroids)
	x.partitions[p].Add(n)
	x.assigned[n] = p
}

func (x *Index) unassign(n uint32) {
	if p, ok := x.assigned[n]; ok {
		x.partitions[p].Remove(n)
		delete(x.assigned, n)
	}
}

var _ index.Index = (*Index)(nil)
