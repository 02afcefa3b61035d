package vector

import (
	"context"
	"fmt"

	"github.com/papercomputeco/docquery/pkg/embeddings"
)

// probeText is embedded once when a Codec is probed to confirm the provider
// is reachable and to learn its dimension.
const probeText = "docquery readiness probe"

// Codec turns text into vectors of a fixed dimension and scores vectors
// against each other with a fixed metric.
type Codec struct {
	embedder   embeddings.Embedder
	metric     Metric
	dimensions int
}

// NewCodec builds a Codec. A zero dimensions value is learned by Probe.
func NewCodec(embedder embeddings.Embedder, metric Metric, dimensions int) *Codec {
	return &Codec{
		embedder:   embedder,
		metric:     metric,
		dimensions: dimensions,
	}
}

// Probe embeds a fixed string once. It fails when the provider cannot embed
// or returns a vector whose length disagrees with the configured dimension.
func (c *Codec) Probe(ctx context.Context) error {
	v, err := c.embedder.Embed(ctx, probeText)
	if err != nil {
		return fmt.Errorf("probing embedder: %w", err)
	}

	if c.dimensions == 0 {
		c.dimensions = len(v)
	}

	if len(v) != c.dimensions {
		return fmt.Errorf("probing embedder: %w: provider returned %d, configured %d",
			ErrDimensionMismatch, len(v), c.dimensions)
	}

	return nil
}

// Embed returns the vector for text, validated against the codec dimension.
func (c *Codec) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := Validate(v, c.dimensions); err != nil {
		return nil, fmt.Errorf("%w: %w", embeddings.ErrUnavailable, err)
	}

	return v, nil
}

func (c *Codec) Similarity(a, b []float32) float32 {
	return c.metric.Similarity(a, b)
}

func (c *Codec) Metric() Metric {
	return c.metric
}

func (c *Codec) Dimensions() int {
	return c.dimensions
}

func (c *Codec) Close() error {
	return c.embedder.Close()
}
