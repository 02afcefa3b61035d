package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g. --storage-root
// on "docquery serve", "docquery stdio" and "docquery ingest").
type Flag struct {
	// Name is the long flag name (e.g. "storage-root").
	Name string

	// Shorthand is the one-letter short flag (e.g. "r"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "storage.root").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagStorageDriver  = "storage-driver"
	FlagStorageRoot    = "storage-root"
	FlagStorageDSN     = "storage-dsn"
	FlagEmbeddingProv  = "embedding-provider"
	FlagEmbeddingTgt   = "embedding-target"
	FlagEmbeddingModel = "embedding-model"
	FlagEmbeddingDims  = "embedding-dimensions"
	FlagMetric         = "metric"
	FlagMaxTopK        = "max-top-k"
	FlagListen         = "listen"
	FlagSourceDir      = "source-dir"
	FlagWatch          = "watch"
	FlagEventsProv     = "events-provider"
	FlagEventsBrokers  = "events-brokers"
	FlagCompression    = "compression"
)

// Registry holds every flag docquery commands can register.
var Registry = FlagSet{
	FlagStorageDriver: {
		Name:        "storage-driver",
		ViperKey:    "storage.driver",
		Description: "Document store driver (filestore, sqlite, postgres, qdrant, inmemory)",
	},
	FlagStorageRoot: {
		Name:        "storage-root",
		Shorthand:   "r",
		ViperKey:    "storage.root",
		Description: "Directory the filestore driver persists documents under",
	},
	FlagStorageDSN: {
		Name:        "storage-dsn",
		ViperKey:    "storage.dsn",
		Description: "Connection string for the sqlite, postgres or qdrant drivers",
	},
	FlagEmbeddingProv: {
		Name:        "embedding-provider",
		ViperKey:    "embedding.provider",
		Description: "Embedding provider (ollama, openai, hash)",
	},
	FlagEmbeddingTgt: {
		Name:        "embedding-target",
		ViperKey:    "embedding.target",
		Description: "Embedding provider URL",
	},
	FlagEmbeddingModel: {
		Name:        "embedding-model",
		ViperKey:    "embedding.model",
		Description: "Embedding model name",
	},
	FlagEmbeddingDims: {
		Name:        "embedding-dimensions",
		ViperKey:    "embedding.dimensions",
		Description: "Embedding vector dimensions",
	},
	FlagMetric: {
		Name:        "metric",
		ViperKey:    "index.metric",
		Description: "Similarity metric (cosine, dot)",
	},
	FlagMaxTopK: {
		Name:        "max-top-k",
		ViperKey:    "query.max_top_k",
		Description: "Upper bound applied to requested top_k",
	},
	FlagListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "server.listen",
		Description: "Address for the HTTP server to listen on",
	},
	FlagSourceDir: {
		Name:        "source-dir",
		Shorthand:   "s",
		ViperKey:    "loader.source_dir",
		Description: "Directory of markdown files synced into the corpus",
	},
	FlagWatch: {
		Name:        "watch",
		Shorthand:   "w",
		ViperKey:    "loader.watch",
		Description: "Re-sync the source directory when its files change",
	},
	FlagEventsProv: {
		Name:        "events-provider",
		ViperKey:    "events.provider",
		Description: "Mutation event publisher (nop, kafka)",
	},
	FlagEventsBrokers: {
		Name:        "events-brokers",
		ViperKey:    "events.brokers",
		Description: "Comma separated Kafka brokers for mutation events",
	},
	FlagCompression: {
		Name:        "compression",
		Shorthand:   "c",
		ViperKey:    "archive.compression",
		Description: "Archive compression (zstd, lz4)",
	},
}

// CoreFlags are the registry keys every command that opens the engine binds.
var CoreFlags = []string{
	FlagStorageDriver,
	FlagStorageRoot,
	FlagStorageDSN,
	FlagEmbeddingProv,
	FlagEmbeddingTgt,
	FlagEmbeddingModel,
	FlagEmbeddingDims,
	FlagMetric,
	FlagMaxTopK,
	FlagEventsProv,
	FlagEventsBrokers,
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddCoreFlags registers CoreFlags on cmd, writing into the string and uint
// targets of a FlagValues.
func AddCoreFlags(cmd *cobra.Command, fv *FlagValues) {
	AddStringFlag(cmd, Registry, FlagStorageDriver, &fv.StorageDriver)
	AddStringFlag(cmd, Registry, FlagStorageRoot, &fv.StorageRoot)
	AddStringFlag(cmd, Registry, FlagStorageDSN, &fv.StorageDSN)
	AddStringFlag(cmd, Registry, FlagEmbeddingProv, &fv.EmbeddingProvider)
	AddStringFlag(cmd, Registry, FlagEmbeddingTgt, &fv.EmbeddingTarget)
	AddStringFlag(cmd, Registry, FlagEmbeddingModel, &fv.EmbeddingModel)
	AddUintFlag(cmd, Registry, FlagEmbeddingDims, &fv.EmbeddingDimensions)
	AddStringFlag(cmd, Registry, FlagMetric, &fv.Metric)
	AddUintFlag(cmd, Registry, FlagMaxTopK, &fv.MaxTopK)
	AddStringFlag(cmd, Registry, FlagEventsProv, &fv.EventsProvider)
	AddStringFlag(cmd, Registry, FlagEventsBrokers, &fv.EventsBrokers)
}

// FlagValues receives the parsed values of CoreFlags. Commands never read it
// directly; the values flow through viper once bound.
type FlagValues struct {
	StorageDriver       string
	StorageRoot         string
	StorageDSN          string
	EmbeddingProvider   string
	EmbeddingTarget     string
	EmbeddingModel      string
	EmbeddingDimensions uint
	Metric              string
	MaxTopK             uint
	EventsProvider      string
	EventsBrokers       string
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}

func defaultBool(viperKey string) bool {
	v := viper.New()
	setViperDefaults(v)
	return v.GetBool(viperKey)
}
