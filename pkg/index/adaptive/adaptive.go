// Package adaptive provides the index the engine uses: an exact flat index
// that is swapped for an approximate ivf index once the corpus reaches a
// size threshold, and swapped back when it shrinks well below it.
package adaptive

import (
	"context"
	"log/slog"

	"github.com/papercomputeco/docquery/pkg/filter"
	"github.com/papercomputeco/docquery/pkg/index"
	"github.com/papercomputeco/docquery/pkg/index/flat"
	"github.com/papercomputeco/docquery/pkg/index/ivf"
	"github.com/papercomputeco/docquery/pkg/logger"
	"github.com/papercomputeco/docquery/pkg/vector"
)

// Strategy names the implementation currently serving searches.
type Strategy string

const (
	StrategyExact       Strategy = "exact"
	StrategyApproximate Strategy = "approximate"
)

type Config struct {
	Metric vector.Metric
	Dims   int

	// Threshold is the entry count at which searches become approximate.
	// Zero keeps the index exact forever.
	Threshold int

	Partitions int
	NProbe     int

	Logger *slog.Logger
}

// snapshotter is implemented by both strategies so one can be rebuilt from
// the other.
type snapshotter interface {
	index.Index
	Entries() []index.Entry
}

type Index struct {
	cfg      Config
	current  snapshotter
	strategy Strategy
	logger   *slog.Logger
}

func New(cfg Config) *Index {
	l := cfg.Logger
	if l == nil {
		l = logger.Nop()
	}

	return &Index{
		cfg:      cfg,
		current:  flat.New(cfg.Metric, cfg.Dims),
		strategy: StrategyExact,
		logger:   l,
	}
}

func (x *Index) Insert(e index.Entry) error {
	if err := x.current.Insert(e); err != nil {
		return err
	}
	x.rebalance()
	return nil
}

func (x *Index) Remove(id string) bool {
	ok := x.current.Remove(id)
	if ok {
		x.rebalance()
	}
	return ok
}

func (x *Index) Search(ctx context.Context, query []float32, topK int, f filter.Filter) ([]index.Hit, error) {
	return x.current.Search(ctx, query, topK, f)
}

func (x *Index) Len() int {
	return x.current.Len()
}

func (x *Index) IDs() []string {
	return x.current.IDs()
}

// Strategy reports which implementation is serving searches.
func (x *Index) Strategy() Strategy {
	return x.strategy
}

// rebalance switches strategies around the threshold. Dropping back to exact
// waits until the corpus is below half the threshold so a corpus hovering at
// the boundary does not rebuild on every mutation.
func (x *Index) rebalance() {
	if x.cfg.Threshold <= 0 {
		return
	}

	n := x.current.Len()
	switch {
	case x.strategy == StrategyExact && n >= x.cfg.Threshold:
		next := ivf.New(ivf.Config{
			Metric:     x.cfg.Metric,
			Dims:       x.cfg.Dims,
			Partitions: x.cfg.Partitions,
			NProbe:     x.cfg.NProbe,
			MinTrain:   x.cfg.Threshold,
		})
		x.swap(next, StrategyApproximate)

	case x.strategy == StrategyApproximate && n < x.cfg.Threshold/2:
		x.swap(flat.New(x.cfg.Metric, x.cfg.Dims), StrategyExact)
	}
}

func (x *Index) swap(next snapshotter, strategy Strategy) {
	for _, e := range x.current.Entries() {
		// Entries already passed dimension checks in the old index.
		_ = next.Insert(e)
	}

	x.logger.Info("switched index strategy",
		"from", x.strategy,
		"to", strategy,
		"entries", next.Len(),
	)

	x.current = next
	x.strategy = strategy
}

var _ index.Index = (*Index)(nil)
