package engine

import (
	"log/slog"

	"github.com/papercomputeco/docquery/pkg/embeddings"
	"github.com/papercomputeco/docquery/pkg/eventstream"
	"github.com/papercomputeco/docquery/pkg/storage"
	"github.com/papercomputeco/docquery/pkg/vector"
)

const (
	// DefaultMaxTopK bounds top_k when Config.MaxTopK is zero.
	DefaultMaxTopK = 100

	// DefaultTopK is used by the facades when a query omits top_k.
	DefaultTopK = 5
)

// Config holds everything Open needs.
type Config struct {
	Store    storage.Driver
	Embedder embeddings.Embedder

	// Provider and Model identify the embedder in the corpus manifest.
	Provider string
	Model    string

	// Dimensions is the expected vector length. Zero learns it from the
	// provider at startup.
	Dimensions int
	Metric     vector.Metric

	// ApproxThreshold is the corpus size at which search switches to the
	// approximate index. Zero keeps search exact.
	ApproxThreshold int
	Partitions      int
	NProbe          int

	MaxTopK     int
	DefaultTopK int

	// Reindex re-embeds every stored document when the manifest does not
	// match instead of failing with ErrCorpusMismatch.
	Reindex bool

	Publisher eventstream.Publisher
	Logger    *slog.Logger
}
