package testutils

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/papercomputeco/docquery/pkg/embeddings"
)

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	mu         sync.RWMutex
	Embeddings map[string][]float32

	// Default is returned for text without an entry in Embeddings.
	Default []float32

	// FailOn causes Embed to return embeddings.ErrUnavailable when the input
	// text matches
	FailOn string

	// Unavailable makes every call fail with embeddings.ErrUnavailable.
	Unavailable bool

	// Gate, when set, blocks every call until it is closed or the context ends.
	Gate chan struct{}

	calls atomic.Int64
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
		Default:    []float32{0.1, 0.2, 0.3},
	}
}

// Set registers the vector returned for text. Safe for concurrent use with Embed.
func (m *MockEmbedder) Set(text string, v []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Embeddings[text] = v
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)

	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", embeddings.ErrUnavailable, ctx.Err())
		}
	}

	if m.Unavailable || (m.FailOn != "" && text == m.FailOn) {
		return nil, fmt.Errorf("%w: mock embedding failure for: %s", embeddings.ErrUnavailable, text)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if emb, ok := m.Embeddings[text]; ok {
		return append([]float32(nil), emb...), nil
	}

	return append([]float32(nil), m.Default...), nil
}

// Calls returns how many times Embed has been invoked.
func (m *MockEmbedder) Calls() int64 {
	return m.calls.Load()
}

func (m *MockEmbedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*MockEmbedder)(nil)
