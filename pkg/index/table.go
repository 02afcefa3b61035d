package index

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/papercomputeco/docquery/pkg/filter"
	"github.com/papercomputeco/docquery/pkg/vector"
)

type slot struct {
	entry    Entry
	prepared []float32
}

// Table stores entries in dense uint32 slots and keeps roaring posting lists
// for string metadata values. Index implementations build on it.
type Table struct {
	metric vector.Metric
	dims   int

	slots []*slot
	byID  map[string]uint32
	free  []uint32
	live  *roaring.Bitmap

	// postings maps field -> string value -> slots holding that value.
	postings map[string]map[string]*roaring.Bitmap
}

func NewTable(metric vector.Metric, dims int) *Table {
	return &Table{
		metric:   metric,
		dims:     dims,
		byID:     make(map[string]uint32),
		live:     roaring.New(),
		postings: make(map[string]map[string]*roaring.Bitmap),
	}
}

// Put stores e and returns its slot. Re-putting an ID reuses the slot.
func (t *Table) Put(e Entry) (uint32, error) {
	if len(e.Vector) != t.dims {
		return 0, fmt.Errorf("%w: entry %q has %d, index has %d", ErrDimensionMismatch, e.ID, len(e.Vector), t.dims)
	}

	s := &slot{
		entry:    e,
		prepared: t.metric.Prepare(e.Vector),
	}

	if id, ok := t.byID[e.ID]; ok {
		t.unpost(id, t.slots[id].entry.Metadata)
		t.slots[id] = s
		t.post(id, e.Metadata)
		return id, nil
	}

	var id uint32
	if n := len(t.free); n > 0 {
		id = t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[id] = s
	} else {
		id = uint32(len(t.slots))
		t.slots = append(t.slots, s)
	}

	t.byID[e.ID] = id
	t.live.Add(id)
	t.post(id, e.Metadata)
	return id, nil
}

// Delete frees the slot for id. It returns the slot and whether id existed.
func (t *Table) Delete(id string) (uint32, bool) {
	n, ok := t.byID[id]
	if !ok {
		return 0, false
	}

	t.unpost(n, t.slots[n].entry.Metadata)
	t.slots[n] = nil
	t.live.Remove(n)
	t.free = append(t.free, n)
	delete(t.byID, id)
	return n, true
}

func (t *Table) Len() int {
	return len(t.byID)
}

// Slot returns the slot of id.
func (t *Table) Slot(id string) (uint32, bool) {
	n, ok := t.byID[id]
	return n, ok
}

// Entry returns the entry in slot n.
func (t *Table) Entry(n uint32) Entry {
	return t.slots[n].entry
}

// Prepared returns the metric-prepared vector in slot n.
func (t *Table) Prepared(n uint32) []float32 {
	return t.slots[n].prepared
}

// Entries returns every entry in insertion order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.byID))
	it := t.live.Iterator()
	for it.HasNext() {
		out = append(out, t.slots[it.Next()].entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// IDs returns every ID in insertion order.
func (t *Table) IDs() []string {
	entries := t.Entries()
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

// Prepare validates a query vector and converts it for scoring.
func (t *Table) Prepare(query []float32) ([]float32, error) {
	if len(query) != t.dims {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), t.dims)
	}
	return t.metric.Prepare(query), nil
}

// Score scores slot n against a prepared query.
func (t *Table) Score(n uint32, prepared []float32) Hit {
	s := t.slots[n]
	return Hit{
		ID:    s.entry.ID,
		Score: vector.Dot(prepared, s.prepared),
		Seq:   s.entry.Seq,
	}
}

// Candidates returns the live slots that can satisfy f, narrowed by the
// posting lists of its string equality terms. The result is a fresh bitmap
// the caller may modify. Predicates without postings are checked by Match.
func (t *Table) Candidates(f filter.Filter) *roaring.Bitmap {
	result := t.live.Clone()
	for _, term := range f.Terms() {
		bm, ok := t.postings[term.Field][term.Value]
		if !ok {
			return roaring.New()
		}
		result.And(bm)
		if result.IsEmpty() {
			break
		}
	}
	return result
}

// Match evaluates f against the metadata in slot n.
func (t *Table) Match(n uint32, f filter.Filter) bool {
	if len(f) == 0 {
		return true
	}
	return f.Match(t.slots[n].entry.Metadata)
}

func (t *Table) post(n uint32, meta map[string]any) {
	for field, v := range meta {
		s, ok := v.(string)
		if !ok {
			continue
		}
		values, ok := t.postings[field]
		if !ok {
			values = make(map[string]*roaring.Bitmap)
			t.postings[field] = values
		}
		bm, ok := values[s]
		if !ok {
			bm = roaring.New()
			values[s] = bm
		}
		bm.Add(n)
	}
}

func (t *Table) unpost(n uint32, meta map[string]any) {
	for field, v := range meta {
		s, ok := v.(string)
		if !ok {
			continue
		}
		bm, ok := t.postings[field][s]
		if !ok {
			continue
		}
		bm.Remove(n)
		if bm.IsEmpty() {
			delete(t.postings[field], s)
			if len(t.postings[field]) == 0 {
				delete(t.postings, field)
			}
		}
	}
}
