package config

const (
	defaultStorageDriver = "filestore"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768

	defaultMetric          = "cosine"
	defaultApproxThreshold = 50000
	defaultNProbe          = 8

	defaultMaxTopK     = 100
	defaultDefaultTopK = 5

	defaultListen = ":8080"

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "docquery.mutations"

	defaultCompression = "zstd"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Index: IndexConfig{
			Metric:          defaultMetric,
			ApproxThreshold: defaultApproxThreshold,
			NProbe:          defaultNProbe,
		},
		Query: QueryConfig{
			MaxTopK:     defaultMaxTopK,
			DefaultTopK: defaultDefaultTopK,
		},
		Server: ServerConfig{
			Listen: defaultListen,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
		Archive: ArchiveConfig{
			Compression: defaultCompression,
		},
	}
}
