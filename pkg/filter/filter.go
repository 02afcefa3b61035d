// Package filter implements metadata predicates applied to query candidates
// before top-k truncation.
package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ErrInvalid is returned for malformed predicates.
var ErrInvalid = errors.New("invalid filter")

// Op is a comparison operator.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpContains Op = "contains"
	OpExists   Op = "exists"
)

// Predicate compares one metadata field against a value.
type Predicate struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value,omitempty"`
}

// Filter is a conjunction of predicates. The zero value matches everything.
type Filter []Predicate

// Term is an equality constraint on a string value. Terms are answered from
// posting lists instead of per-candidate evaluation.
type Term struct {
	Field string
	Value string
}

// FromMap builds a Filter of equality predicates from a field/value map, the
// shorthand accepted by the protocol facades. Fields are sorted so the
// resulting Filter is stable.
func FromMap(m map[string]any) Filter {
	if len(m) == 0 {
		return nil
	}

	fields := make([]string, 0, len(m))
	for k := range m {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	f := make(Filter, 0, len(fields))
	for _, k := range fields {
		f = append(f, Predicate{Field: k, Op: OpEq, Value: m[k]})
	}
	return f
}

// Validate checks every predicate for a known operator, a field name and a
// value of the right shape.
func (f Filter) Validate() error {
	for i, p := range f {
		if strings.TrimSpace(p.Field) == "" {
			return fmt.Errorf("%w: predicate %d has no field", ErrInvalid, i)
		}

		switch p.Op {
		case OpEq, OpNe:
			if !isScalar(p.Value) {
				return fmt.Errorf("%w: %s on %q needs a scalar value", ErrInvalid, p.Op, p.Field)
			}
		case OpGt, OpGte, OpLt, OpLte:
			if _, ok := toFloat(p.Value); !ok {
				if _, ok := p.Value.(string); !ok {
					return fmt.Errorf("%w: %s on %q needs a number or string", ErrInvalid, p.Op, p.Field)
				}
			}
		case OpIn:
			values, ok := toList(p.Value)
			if !ok || len(values) == 0 {
				return fmt.Errorf("%w: in on %q needs a non-empty list", ErrInvalid, p.Field)
			}
		case OpContains:
			if _, ok := p.Value.(string); !ok {
				return fmt.Errorf("%w: contains on %q needs a string", ErrInvalid, p.Field)
			}
		case OpExists:
			if p.Value != nil {
				if _, ok := p.Value.(bool); !ok {
					return fmt.Errorf("%w: exists on %q takes an optional bool", ErrInvalid, p.Field)
				}
			}
		default:
			return fmt.Errorf("%w: unknown operator %q", ErrInvalid, p.Op)
		}
	}
	return nil
}

// Match reports whether meta satisfies every predicate.
func (f Filter) Match(meta map[string]any) bool {
	for _, p := range f {
		if !p.match(meta) {
			return false
		}
	}
	return true
}

// Terms returns the string equality predicates of f.
func (f Filter) Terms() []Term {
	var terms []Term
	for _, p := range f {
		if p.Op != OpEq {
			continue
		}
		if s, ok := p.Value.(string); ok {
			terms = append(terms, Term{Field: p.Field, Value: s})
		}
	}
	return terms
}

func (p Predicate) match(meta map[string]any) bool {
	v, present := meta[p.Field]

	switch p.Op {
	case OpExists:
		want := true
		if b, ok := p.Value.(bool); ok {
			want = b
		}
		return present == want
	case OpNe:
		return !present || !equal(v, p.Value)
	}

	if !present {
		return false
	}

	switch p.Op {
	case OpEq:
		return equal(v, p.Value)
	case OpIn:
		values, _ := toList(p.Value)
		for _, want := range values {
			if equal(v, want) {
				return true
			}
		}
		return false
	case OpContains:
		s, ok := v.(string)
		sub, _ := p.Value.(string)
		return ok && strings.Contains(s, sub)
	case OpGt, OpGte, OpLt, OpLte:
		c, ok := compare(v, p.Value)
		if !ok {
			return false
		}
		switch p.Op {
		case OpGt:
			return c > 0
		case OpGte:
			return c >= 0
		case OpLt:
			return c < 0
		default:
			return c <= 0
		}
	}
	return false
}

// equal compares scalars, treating every numeric kind as float64.
func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return a == b
}

// compare orders two numbers or two strings.
func compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}

	sa, ok := a.(string)
	if !ok {
		return 0, false
	}
	sb, ok := b.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if l, ok := v.([]any); ok {
		return l, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	}
	_, ok := toFloat(v)
	return ok
}
