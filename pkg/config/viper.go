package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/docquery/pkg/dotdir"
)

// LegacyStorageEnv is honored for compatibility with deployments that mount a
// document directory and point MCP_STORAGE_PATH at its parent. Markdown files
// are then read from $MCP_STORAGE_PATH/storage.
const LegacyStorageEnv = "MCP_STORAGE_PATH"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the DOCQUERY_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (DOCQUERY_STORAGE_ROOT, DOCQUERY_SERVER_LISTEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("DOCQUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes the resolved viper state into a Config.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Version: v.GetInt("version"),
		Storage: StorageConfig{
			Driver: v.GetString("storage.driver"),
			Root:   v.GetString("storage.root"),
			DSN:    v.GetString("storage.dsn"),
		},
		Embedding: EmbeddingConfig{
			Provider:   v.GetString("embedding.provider"),
			Target:     v.GetString("embedding.target"),
			Model:      v.GetString("embedding.model"),
			Dimensions: v.GetUint("embedding.dimensions"),
			APIKey:     v.GetString("embedding.api_key"),
			RateLimit:  v.GetFloat64("embedding.rate_limit"),
		},
		Index: IndexConfig{
			Metric:          v.GetString("index.metric"),
			ApproxThreshold: v.GetUint("index.approx_threshold"),
			Partitions:      v.GetUint("index.partitions"),
			NProbe:          v.GetUint("index.nprobe"),
		},
		Query: QueryConfig{
			MaxTopK:     v.GetUint("query.max_top_k"),
			DefaultTopK: v.GetUint("query.default_top_k"),
		},
		Server: ServerConfig{
			Listen: v.GetString("server.listen"),
		},
		Loader: LoaderConfig{
			SourceDir: v.GetString("loader.source_dir"),
			Watch:     v.GetBool("loader.watch"),
		},
		Events: EventsConfig{
			Provider: v.GetString("events.provider"),
			Brokers:  v.GetString("events.brokers"),
			Topic:    v.GetString("events.topic"),
		},
		Archive: ArchiveConfig{
			Compression: v.GetString("archive.compression"),
			Endpoint:    v.GetString("archive.endpoint"),
			Bucket:      v.GetString("archive.bucket"),
			AccessKey:   v.GetString("archive.access_key"),
			SecretKey:   v.GetString("archive.secret_key"),
			UseSSL:      v.GetBool("archive.use_ssl"),
		},
	}

	if cfg.Loader.SourceDir == "" {
		if legacy := os.Getenv(LegacyStorageEnv); legacy != "" {
			cfg.Loader.SourceDir = filepath.Join(legacy, "storage")
		}
	}

	return cfg
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.root", d.Storage.Root)
	v.SetDefault("storage.dsn", d.Storage.DSN)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.rate_limit", d.Embedding.RateLimit)

	// Index
	v.SetDefault("index.metric", d.Index.Metric)
	v.SetDefault("index.approx_threshold", d.Index.ApproxThreshold)
	v.SetDefault("index.partitions", d.Index.Partitions)
	v.SetDefault("index.nprobe", d.Index.NProbe)

	// Query
	v.SetDefault("query.max_top_k", d.Query.MaxTopK)
	v.SetDefault("query.default_top_k", d.Query.DefaultTopK)

	v.SetDefault("server.listen", d.Server.Listen)

	// Loader
	v.SetDefault("loader.source_dir", d.Loader.SourceDir)
	v.SetDefault("loader.watch", d.Loader.Watch)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	// Archive
	v.SetDefault("archive.compression", d.Archive.Compression)
	v.SetDefault("archive.endpoint", d.Archive.Endpoint)
	v.SetDefault("archive.bucket", d.Archive.Bucket)
	v.SetDefault("archive.access_key", d.Archive.AccessKey)
	v.SetDefault("archive.secret_key", d.Archive.SecretKey)
	v.SetDefault("archive.use_ssl", d.Archive.UseSSL)
}
