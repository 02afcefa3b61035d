package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// NormalizeMetadata validates that every value is a string, bool, integer or
// float and converts numbers to int64 or float64, the forms drivers persist.
// The input map is not modified.
func NormalizeMetadata(meta map[string]any) (map[string]any, error) {
	if len(meta) == 0 {
		return nil, nil
	}

	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if k == "" {
			return nil, fmt.Errorf("%w: empty key", ErrInvalidMetadata)
		}

		n, err := normalizeScalar(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidMetadata, k, err)
		}
		out[k] = n
	}
	return out, nil
}

func normalizeScalar(v any) (any, error) {
	switch x := v.(type) {
	case string, bool, int64:
		return x, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("float %v is not finite", x)
		}
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", x)
		}
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", x)
		}
		return int64(x), nil
	case float32:
		return normalizeScalar(float64(x))
	case json.Number:
		if !strings.ContainsAny(x.String(), ".eE") {
			if i, err := x.Int64(); err == nil {
				return i, nil
			}
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", x.String())
		}
		return f, nil
	case nil:
		return nil, fmt.Errorf("null is not a scalar")
	default:
		return nil, fmt.Errorf("%T is not a scalar", v)
	}
}

// EncodeMetadata marshals metadata so that DecodeMetadata restores each
// value with its type. Floats always carry a decimal point or an exponent.
func EncodeMetadata(meta map[string]any) ([]byte, error) {
	norm, err := NormalizeMetadata(meta)
	if err != nil {
		return nil, err
	}
	if norm == nil {
		return []byte("null"), nil
	}

	raw := make(map[string]json.RawMessage, len(norm))
	for k, v := range norm {
		if f, ok := v.(float64); ok {
			raw[k] = encodeFloat(f)
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw[k] = b
	}
	return json.Marshal(raw)
}

func encodeFloat(f float64) json.RawMessage {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return json.RawMessage(s)
}

// DecodeMetadata unmarshals a JSON metadata object. Numbers without a
// decimal point or exponent become int64, the rest float64.
func DecodeMetadata(data []byte) (map[string]any, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	meta := make(map[string]any, len(raw))
	for k, r := range raw {
		var v any
		if err := decodeNumber(r, &v); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	return NormalizeMetadata(meta)
}

// MarshalJSON writes metadata with EncodeMetadata so floats and integers
// stay distinguishable.
func (d Document) MarshalJSON() ([]byte, error) {
	type alias Document
	aux := struct {
		alias
		Metadata json.RawMessage `json:"metadata,omitempty"`
	}{alias: alias(d)}

	if len(d.Metadata) > 0 {
		meta, err := EncodeMetadata(d.Metadata)
		if err != nil {
			return nil, err
		}
		aux.Metadata = meta
	}
	return json.Marshal(aux)
}

// UnmarshalJSON keeps integer metadata as int64 rather than float64.
func (d *Document) UnmarshalJSON(data []byte) error {
	type alias Document
	aux := struct {
		*alias
		Metadata json.RawMessage `json:"metadata,omitempty"`
	}{alias: (*alias)(d)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	meta, err := DecodeMetadata(aux.Metadata)
	if err != nil {
		return err
	}
	d.Metadata = meta
	return nil
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Vector = append([]float32(nil), d.Vector...)
	if d.Metadata != nil {
		c.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Merge prepares doc for storage given the currently stored version, if
// any: it keeps the existing Seq and CreatedAt, or assigns nextSeq and
// UpdatedAt for a new document. Drivers call it inside their write path.
func Merge(doc, existing *Document, nextSeq uint64) *Document {
	out := doc.Clone()
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = time.Now().UTC()
	}

	if existing != nil {
		out.Seq = existing.Seq
		out.CreatedAt = existing.CreatedAt
		return out
	}

	out.Seq = nextSeq
	if out.CreatedAt.IsZero() {
		out.CreatedAt = out.UpdatedAt
	}
	return out
}

func decodeNumber(data []byte, v *any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
