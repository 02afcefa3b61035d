// Package hash implements a deterministic feature-hashing Embedder. It needs
// no model or network and is meant for offline runs and smoke tests; its
// vectors capture shared vocabulary, not meaning.
package hash

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/papercomputeco/docquery/pkg/embeddings"
	"github.com/papercomputeco/docquery/pkg/vector"
)

// DefaultDimensions is used when no dimension is configured.
const DefaultDimensions = 256

// bigramWeight scales adjacent-token features relative to single tokens.
const bigramWeight = 0.5

type Embedder struct {
	dimensions int
}

func NewEmbedder(dimensions int) (*Embedder, error) {
	if dimensions < 0 {
		return nil, errors.New("hash embedder dimensions must not be negative")
	}
	if dimensions == 0 {
		dimensions = DefaultDimensions
	}
	return &Embedder{dimensions: dimensions}, nil
}

// Embed hashes lower-cased word tokens and their bigrams into signed buckets
// and L2-normalizes the result. Text without tokens embeds to the zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := make([]float32, e.dimensions)
	tokens := tokenize(text)
	for i, tok := range tokens {
		e.add(v, tok, 1)
		if i > 0 {
			e.add(v, tokens[i-1]+" "+tok, bigramWeight)
		}
	}

	vector.NormalizeL2InPlace(v)
	return v, nil
}

func (e *Embedder) add(v []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := int(sum % uint64(e.dimensions))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[bucket] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)
