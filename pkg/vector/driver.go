// Package vector holds the similarity math shared by the index and the
// codec that turns text into fixed-dimension vectors.
package vector

import (
	"fmt"
	"math"
	"strings"
)

// Metric names the similarity function a corpus is scored with. It is fixed
// for the lifetime of a corpus and recorded in the store manifest.
type Metric string

const (
	// MetricCosine scores by the cosine of the angle between two vectors.
	MetricCosine Metric = "cosine"

	// MetricDot scores by the raw inner product.
	MetricDot Metric = "dot"
)

// ParseMetric resolves a configured metric name. The empty string selects
// MetricCosine.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case "", MetricCosine:
		return MetricCosine, nil
	case MetricDot:
		return MetricDot, nil
	default:
		return "", fmt.Errorf("%w: %q (available: cosine, dot)", ErrUnknownMetric, s)
	}
}

func (m Metric) String() string {
	return string(m)
}

// Prepare returns the form of v that is stored in an index for this metric.
// Cosine vectors are L2-normalized copies so that scoring reduces to Dot;
// dot vectors are copied unchanged. A zero vector stays zero and scores 0
// against everything.
func (m Metric) Prepare(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	if m == MetricCosine {
		NormalizeL2InPlace(out)
	}
	return out
}

// Similarity scores a against b, higher meaning more similar.
// Both vectors must have the same length.
func (m Metric) Similarity(a, b []float32) float32 {
	if m == MetricCosine {
		na, nb := Dot(a, a), Dot(b, b)
		if na == 0 || nb == 0 {
			return 0
		}
		return Dot(a, b) / float32(math.Sqrt(float64(na))*math.Sqrt(float64(nb)))
	}
	return Dot(a, b)
}

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	norm2 := Dot(v, v)
	if norm2 == 0 {
		return false
	}
	inv := float32(1 / math.Sqrt(float64(norm2)))
	for i := range v {
		v[i] *= inv
	}
	return true
}
