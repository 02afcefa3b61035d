// Package app assembles the engine and its collaborators from a resolved
// configuration. Every entry point (HTTP server, stdio server, CLI
// commands) opens the core through Open so they all agree on storage,
// embedder and manifest handling.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/papercomputeco/docquery/pkg/archive"
	"github.com/papercomputeco/docquery/pkg/config"
	"github.com/papercomputeco/docquery/pkg/dotdir"
	embeddingutils "github.com/papercomputeco/docquery/pkg/embeddings/utils"
	"github.com/papercomputeco/docquery/pkg/engine"
	"github.com/papercomputeco/docquery/pkg/eventstream"
	"github.com/papercomputeco/docquery/pkg/eventstream/async"
	"github.com/papercomputeco/docquery/pkg/eventstream/kafka"
	"github.com/papercomputeco/docquery/pkg/eventstream/nop"
	"github.com/papercomputeco/docquery/pkg/loader"
	"github.com/papercomputeco/docquery/pkg/logger"
	"github.com/papercomputeco/docquery/pkg/storage"
	storageutils "github.com/papercomputeco/docquery/pkg/storage/utils"
	"github.com/papercomputeco/docquery/pkg/vector"
)

// Event publisher names.
const (
	EventsNop   = "nop"
	EventsKafka = "kafka"
)

const kafkaWriteTimeout = 10 * time.Second

// openAIKeyEnv is read when no embedding.api_key is configured.
const openAIKeyEnv = "OPENAI_API_KEY"

// Options adjust how Open treats the configured store.
type Options struct {
	// Ephemeral replaces the configured driver with the in-memory one.
	Ephemeral bool

	// Reindex re-embeds the corpus when the manifest does not match.
	Reindex bool
}

// App is an opened engine plus the loader bound to it.
type App struct {
	Config *config.Config
	Engine *engine.Engine
	Loader *loader.Loader
	Logger *slog.Logger

	stopWatch context.CancelFunc
	watchDone chan struct{}
}

// Open builds the store, embedder and publisher described by cfg and opens
// the engine over them. Anything built before a failure is closed again.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger, opts Options) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}

	metric, err := vector.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, err
	}

	store, err := NewStore(ctx, cfg.Storage, log, opts.Ephemeral)
	if err != nil {
		return nil, err
	}

	apiKey := cfg.Embedding.APIKey
	if apiKey == "" && cfg.Embedding.Provider == embeddingutils.ProviderOpenAI {
		apiKey = os.Getenv(openAIKeyEnv)
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		APIKey:       apiKey,
		Dimensions:   cfg.Embedding.Dimensions,
		RateLimit:    cfg.Embedding.RateLimit,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	publisher, err := NewPublisher(cfg.Events, log)
	if err != nil {
		_ = errors.Join(embedder.Close(), store.Close())
		return nil, err
	}

	eng, err := engine.Open(ctx, engine.Config{
		Store:           store,
		Embedder:        embedder,
		Provider:        cfg.Embedding.Provider,
		Model:           cfg.Embedding.Model,
		Dimensions:      int(cfg.Embedding.Dimensions),
		Metric:          metric,
		ApproxThreshold: int(cfg.Index.ApproxThreshold),
		Partitions:      int(cfg.Index.Partitions),
		NProbe:          int(cfg.Index.NProbe),
		MaxTopK:         int(cfg.Query.MaxTopK),
		DefaultTopK:     int(cfg.Query.DefaultTopK),
		Reindex:         opts.Reindex,
		Publisher:       publisher,
		Logger:          log,
	})
	if err != nil {
		_ = errors.Join(publisher.Close(), embedder.Close(), store.Close())
		return nil, fmt.Errorf("opening engine: %w", err)
	}

	return &App{
		Config: cfg,
		Engine: eng,
		Loader: loader.New(eng, loader.WithLogger(log)),
		Logger: log,
	}, nil
}

// Close releases the engine and everything it owns.
func (a *App) Close() error {
	if a.stopWatch != nil {
		a.stopWatch()
		<-a.watchDone
		a.stopWatch = nil
	}
	return a.Engine.Close()
}

// SyncSource runs an initial sync of the configured source directory and,
// when watching is enabled, keeps watching it in the background until ctx
// ends or the app is closed. It does nothing when no source directory is
// configured.
func (a *App) SyncSource(ctx context.Context) error {
	dir := a.Config.Loader.SourceDir
	if dir == "" {
		return nil
	}

	if a.Config.Loader.Watch {
		if a.stopWatch != nil {
			return fmt.Errorf("already watching %s", dir)
		}

		wctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		a.stopWatch, a.watchDone = cancel, done

		go func() {
			defer close(done)
			if err := a.Loader.Watch(wctx, dir); err != nil {
				a.Logger.Error("source watcher stopped", "dir", dir, logger.Err(err))
			}
		}()
		return nil
	}

	_, err := a.Loader.Sync(ctx, dir)
	return err
}

// NewStore opens the configured document store.
func NewStore(ctx context.Context, cfg config.StorageConfig, log *slog.Logger, ephemeral bool) (storage.Driver, error) {
	driverType := cfg.Driver
	if ephemeral {
		driverType = storageutils.DriverInMemory
	}

	root := cfg.Root
	if driverType == "" || driverType == storageutils.DriverFilestore || driverType == storageutils.DriverSQLite {
		var err error
		root, err = dotdir.NewManager().StorageRoot(cfg.Root)
		if err != nil {
			return nil, err
		}
	}

	store, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{
		DriverType: driverType,
		Root:       root,
		DSN:        cfg.DSN,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", driverType, err)
	}

	log.Info("opened document store", "driver", driverType, "root", root)
	return store, nil
}

// NewPublisher builds the configured mutation event publisher. Kafka
// delivery runs on a background worker pool.
func NewPublisher(cfg config.EventsConfig, log *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.Provider {
	case "", EventsNop:
		return nop.NewPublisher(), nil
	case EventsKafka:
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers:      splitList(cfg.Brokers),
			Topic:        cfg.Topic,
			WriteTimeout: kafkaWriteTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		pool, err := async.NewPublisher(&async.Config{
			Publisher:      p,
			PublishTimeout: kafkaWriteTimeout,
			Logger:         log,
		})
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		return pool, nil
	default:
		return nil, fmt.Errorf("unsupported events provider: %s", cfg.Provider)
	}
}

// NewBucket builds the archive bucket from cfg, or returns nil when no
// bucket is configured.
func NewBucket(cfg config.ArchiveConfig) (*archive.Bucket, error) {
	if cfg.Endpoint == "" && cfg.Bucket == "" {
		return nil, nil
	}
	return archive.NewBucket(archive.BucketConfig{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		Prefix:    "docquery",
		Secure:    cfg.UseSSL,
	})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
