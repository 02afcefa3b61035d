package embeddings

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limited wraps an Embedder with a client-side token bucket so bulk ingests
// do not exceed a provider's request quota.
type Limited struct {
	next    Embedder
	limiter *rate.Limiter
}

// NewLimited returns e unchanged when perSecond is not positive.
func NewLimited(e Embedder, perSecond float64) Embedder {
	if perSecond <= 0 {
		return e
	}

	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}

	return &Limited{
		next:    e,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (l *Limited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: waiting for rate limiter: %w", ErrUnavailable, err)
	}
	return l.next.Embed(ctx, text)
}

func (l *Limited) Close() error {
	return l.next.Close()
}
