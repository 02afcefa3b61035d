package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent docquery configuration stored as
// config.toml in the .docquery/ directory. Sections mirror the components
// they configure.
type Config struct {
	Version   int             `toml:"version"`
	Storage   StorageConfig   `toml:"storage"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Index     IndexConfig     `toml:"index"`
	Query     QueryConfig     `toml:"query"`
	Server    ServerConfig    `toml:"server"`
	Loader    LoaderConfig    `toml:"loader"`
	Events    EventsConfig    `toml:"events"`
	Archive   ArchiveConfig   `toml:"archive"`
}

// StorageConfig selects the document store driver.
// Root is used by the filestore driver; DSN by sqlite, postgres and qdrant.
type StorageConfig struct {
	Driver string `toml:"driver,omitempty"`
	Root   string `toml:"root,omitempty"`
	DSN    string `toml:"dsn,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string  `toml:"provider,omitempty"`
	Target     string  `toml:"target,omitempty"`
	Model      string  `toml:"model,omitempty"`
	Dimensions uint    `toml:"dimensions,omitempty"`
	APIKey     string  `toml:"api_key,omitempty"`
	RateLimit  float64 `toml:"rate_limit,omitempty"`
}

// IndexConfig tunes the in-memory nearest-neighbor index.
type IndexConfig struct {
	Metric          string `toml:"metric,omitempty"`
	ApproxThreshold uint   `toml:"approx_threshold,omitempty"`
	Partitions      uint   `toml:"partitions,omitempty"`
	NProbe          uint   `toml:"nprobe,omitempty"`
}

type QueryConfig struct {
	MaxTopK     uint `toml:"max_top_k,omitempty"`
	DefaultTopK uint `toml:"default_top_k,omitempty"`
}

type ServerConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// LoaderConfig points at a directory of markdown files that is synced into
// the corpus on startup.
type LoaderConfig struct {
	SourceDir string `toml:"source_dir,omitempty"`
	Watch     bool   `toml:"watch,omitempty"`
}

// EventsConfig selects where mutation events are published.
// Brokers is a comma separated list of Kafka bootstrap addresses.
type EventsConfig struct {
	Provider string `toml:"provider,omitempty"`
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
}

// ArchiveConfig holds export/import settings, including the optional
// S3-compatible bucket archives are copied to.
type ArchiveConfig struct {
	Compression string `toml:"compression,omitempty"`
	Endpoint    string `toml:"endpoint,omitempty"`
	Bucket      string `toml:"bucket,omitempty"`
	AccessKey   string `toml:"access_key,omitempty"`
	SecretKey   string `toml:"secret_key,omitempty"`
	UseSSL      bool   `toml:"use_ssl,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func floatKey(name string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatFloat(*field(c), 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if f < 0 {
				return fmt.Errorf("invalid value for %s: must not be negative", name)
			}
			*field(c) = f
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver": stringKey(func(c *Config) *string { return &c.Storage.Driver }),
	"storage.root":   stringKey(func(c *Config) *string { return &c.Storage.Root }),
	"storage.dsn":    stringKey(func(c *Config) *string { return &c.Storage.DSN }),

	"embedding.provider":   stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":     stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":      stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),
	"embedding.api_key":    stringKey(func(c *Config) *string { return &c.Embedding.APIKey }),
	"embedding.rate_limit": floatKey("embedding.rate_limit", func(c *Config) *float64 { return &c.Embedding.RateLimit }),

	"index.metric":           stringKey(func(c *Config) *string { return &c.Index.Metric }),
	"index.approx_threshold": uintKey("index.approx_threshold", func(c *Config) *uint { return &c.Index.ApproxThreshold }),
	"index.partitions":       uintKey("index.partitions", func(c *Config) *uint { return &c.Index.Partitions }),
	"index.nprobe":           uintKey("index.nprobe", func(c *Config) *uint { return &c.Index.NProbe }),

	"query.max_top_k":     uintKey("query.max_top_k", func(c *Config) *uint { return &c.Query.MaxTopK }),
	"query.default_top_k": uintKey("query.default_top_k", func(c *Config) *uint { return &c.Query.DefaultTopK }),

	"server.listen": stringKey(func(c *Config) *string { return &c.Server.Listen }),

	"loader.source_dir": stringKey(func(c *Config) *string { return &c.Loader.SourceDir }),
	"loader.watch":      boolKey("loader.watch", func(c *Config) *bool { return &c.Loader.Watch }),

	"events.provider": stringKey(func(c *Config) *string { return &c.Events.Provider }),
	"events.brokers":  stringKey(func(c *Config) *string { return &c.Events.Brokers }),
	"events.topic":    stringKey(func(c *Config) *string { return &c.Events.Topic }),

	"archive.compression": stringKey(func(c *Config) *string { return &c.Archive.Compression }),
	"archive.endpoint":    stringKey(func(c *Config) *string { return &c.Archive.Endpoint }),
	"archive.bucket":      stringKey(func(c *Config) *string { return &c.Archive.Bucket }),
	"archive.access_key":  stringKey(func(c *Config) *string { return &c.Archive.AccessKey }),
	"archive.secret_key":  stringKey(func(c *Config) *string { return &c.Archive.SecretKey }),
	"archive.use_ssl":     boolKey("archive.use_ssl", func(c *Config) *bool { return &c.Archive.UseSSL }),
}

// orderedKeys lists configKeys in TOML section order for display.
var orderedKeys = []string{
	"storage.driver",
	"storage.root",
	"storage.dsn",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.dimensions",
	"embedding.api_key",
	"embedding.rate_limit",
	"index.metric",
	"index.approx_threshold",
	"index.partitions",
	"index.nprobe",
	"query.max_top_k",
	"query.default_top_k",
	"server.listen",
	"loader.source_dir",
	"loader.watch",
	"events.provider",
	"events.brokers",
	"events.topic",
	"archive.compression",
	"archive.endpoint",
	"archive.bucket",
	"archive.access_key",
	"archive.secret_key",
	"archive.use_ssl",
}
