package index

import (
	"container/heap"
	"sort"
)

// Collector keeps the best k hits offered to it.
type Collector struct {
	k    int
	hits hitHeap
}

func NewCollector(k int) *Collector {
	return &Collector{
		k:    k,
		hits: make(hitHeap, 0, k),
	}
}

func (c *Collector) Offer(h Hit) {
	if c.k <= 0 {
		return
	}
	if len(c.hits) < c.k {
		heap.Push(&c.hits, h)
		return
	}
	if Better(h, c.hits[0]) {
		c.hits[0] = h
		heap.Fix(&c.hits, 0)
	}
}

// Merge offers every hit held by other.
func (c *Collector) Merge(other *Collector) {
	for _, h := range other.hits {
		c.Offer(h)
	}
}

// Results returns the collected hits, best first.
func (c *Collector) Results() []Hit {
	out := make([]Hit, len(c.hits))
	copy(out, c.hits)
	sort.Slice(out, func(i, j int) bool { return Better(out[i], out[j]) })
	return out
}

// hitHeap is a min-heap on rank: the root is the worst kept hit.
type hitHeap []Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return Better(h[j], h[i]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
