// Package flat implements an exact, exhaustive-scan index.
package flat

import (
	"context"

	"github.com/papercomputeco/docquery/pkg/filter"
	"github.com/papercomputeco/docquery/pkg/index"
	"github.com/papercomputeco/docquery/pkg/vector"
)

// cancelCheckInterval is how many candidates are scored between context checks.
const cancelCheckInterval = 4096

type Index struct {
	table *index.Table
}

func New(metric vector.Metric, dims int) *Index {
	return &Index{
		table: index.NewTable(metric, dims),
	}
}

func (x *Index) Insert(e index.Entry) error {
	_, err := x.table.Put(e)
	return err
}

func (x *Index) Remove(id string) bool {
	_, ok := x.table.Delete(id)
	return ok
}

// Search scores every candidate surviving f and keeps the best topK.
func (x *Index) Search(ctx context.Context, query []float32, topK int, f filter.Filter) ([]index.Hit, error) {
	prepared, err := x.table.Prepare(query)
	if err != nil {
		return nil, err
	}

	c := index.NewCollector(topK)
	it := x.table.Candidates(f).Iterator()
	for i := 0; it.HasNext(); i++ {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		n := it.Next()
		if !x.table.Match(n, f) {
			continue
		}
		c.Offer(x.table.Score(n, prepared))
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

var _ index.Index = (*Index)(nil)
