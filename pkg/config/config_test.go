package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/docquery/pkg/config"
)

var _ = Describe("Configer config", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("loads all config fields", func() {
			data := `version = 0

[storage]
driver = "sqlite"
dsn = "/tmp/docquery.db"

[embedding]
provider = "openai"
target = "https://api.openai.com/v1"
model = "text-embedding-3-small"
dimensions = 1536
api_key = "sk-test"
rate_limit = 2.5

[index]
metric = "dot"
approx_threshold = 1000
partitions = 16
nprobe = 4

[query]
max_top_k = 50
default_top_k = 3

[server]
listen = ":9090"

[loader]
source_dir = "/srv/docs"
watch = true

[events]
provider = "kafka"
brokers = "localhost:9092"
topic = "docs"

[archive]
compression = "lz4"
bucket = "backups"
`
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Storage.Driver).To(Equal("sqlite"))
			Expect(cfg.Storage.DSN).To(Equal("/tmp/docquery.db"))
			Expect(cfg.Embedding.Provider).To(Equal("openai"))
			Expect(cfg.Embedding.Dimensions).To(Equal(uint(1536)))
			Expect(cfg.Embedding.APIKey).To(Equal("sk-test"))
			Expect(cfg.Embedding.RateLimit).To(Equal(2.5))
			Expect(cfg.Index.Metric).To(Equal("dot"))
			Expect(cfg.Index.ApproxThreshold).To(Equal(uint(1000)))
			Expect(cfg.Index.Partitions).To(Equal(uint(16)))
			Expect(cfg.Index.NProbe).To(Equal(uint(4)))
			Expect(cfg.Query.MaxTopK).To(Equal(uint(50)))
			Expect(cfg.Query.DefaultTopK).To(Equal(uint(3)))
			Expect(cfg.Server.Listen).To(Equal(":9090"))
			Expect(cfg.Loader.SourceDir).To(Equal("/srv/docs"))
			Expect(cfg.Loader.Watch).To(BeTrue())
			Expect(cfg.Events.Provider).To(Equal("kafka"))
			Expect(cfg.Events.Brokers).To(Equal("localhost:9092"))
			Expect(cfg.Events.Topic).To(Equal("docs"))
			Expect(cfg.Archive.Compression).To(Equal("lz4"))
			Expect(cfg.Archive.Bucket).To(Equal("backups"))
		})

		It("fills in defaults for unset fields in a partial config", func() {
			data := `[index]
metric = "dot"
`
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())

			defaults := config.NewDefaultConfig()
			Expect(cfg.Index.Metric).To(Equal("dot"))
			Expect(cfg.Index.NProbe).To(Equal(defaults.Index.NProbe))
			Expect(cfg.Storage.Driver).To(Equal(defaults.Storage.Driver))
			Expect(cfg.Query.MaxTopK).To(Equal(defaults.Query.MaxTopK))
			Expect(cfg.Embedding.Model).To(Equal(defaults.Embedding.Model))
		})

		It("returns error for malformed TOML", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[storage\ndriver ="), 0o600)).To(Succeed())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("parsing config TOML"))
		})

		It("returns error for unsupported config version", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("version = 99\n"), 0o600)).To(Succeed())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unsupported config version 99"))
		})
	})

	Describe("SaveConfig", func() {
		It("persists config to disk", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg := config.NewDefaultConfig()
			cfg.Storage.Driver = "postgres"
			cfg.Storage.DSN = "postgres://localhost/docquery"
			Expect(c.SaveConfig(cfg)).To(Succeed())

			data, err := os.ReadFile(filepath.Join(tmpDir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`driver = "postgres"`))
			Expect(string(data)).To(ContainSubstring(`dsn = "postgres://localhost/docquery"`))
		})

		It("returns error for nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SaveConfig(nil)).To(MatchError(ContainSubstring("nil config")))
		})
	})

	Describe("SetConfigValue", func() {
		var c *config.Configer

		BeforeEach(func() {
			var err error
			c, err = config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
		})

		It("sets a string config key", func() {
			Expect(c.SetConfigValue("storage.driver", "qdrant")).To(Succeed())

			val, err := c.GetConfigValue("storage.driver")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("qdrant"))
		})

		It("sets a uint config key", func() {
			Expect(c.SetConfigValue("query.max_top_k", "25")).To(Succeed())

			val, err := c.GetConfigValue("query.max_top_k")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("25"))
		})

		It("sets a bool config key", func() {
			Expect(c.SetConfigValue("loader.watch", "true")).To(Succeed())

			val, err := c.GetConfigValue("loader.watch")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("true"))
		})

		It("sets a float config key", func() {
			Expect(c.SetConfigValue("embedding.rate_limit", "0.5")).To(Succeed())

			val, err := c.GetConfigValue("embedding.rate_limit")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("0.5"))
		})

		It("returns error for unknown key", func() {
			err := c.SetConfigValue("proxy.upstream", "x")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("returns error for invalid values", func() {
			Expect(c.SetConfigValue("index.nprobe", "many")).To(MatchError(ContainSubstring("invalid value for index.nprobe")))
			Expect(c.SetConfigValue("loader.watch", "sometimes")).To(MatchError(ContainSubstring("invalid value for loader.watch")))
			Expect(c.SetConfigValue("embedding.rate_limit", "-1")).To(MatchError(ContainSubstring("must not be negative")))
		})

		It("preserves existing values when setting a new key", func() {
			Expect(c.SetConfigValue("server.listen", ":7000")).To(Succeed())
			Expect(c.SetConfigValue("index.metric", "dot")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Server.Listen).To(Equal(":7000"))
			Expect(cfg.Index.Metric).To(Equal("dot"))
		})
	})

	Describe("GetConfigValue", func() {
		It("returns default value when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			val, err := c.GetConfigValue("index.metric")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("cosine"))
		})

		It("returns empty string for key with no default", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			val, err := c.GetConfigValue("storage.dsn")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(BeEmpty())
		})
	})

	Describe("round-trip", func() {
		It("saves and loads config correctly with all fields", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			original := config.NewDefaultConfig()
			original.Storage.Root = "/var/lib/docquery"
			original.Embedding.APIKey = "key"
			original.Embedding.RateLimit = 4
			original.Index.Partitions = 32
			original.Loader.SourceDir = "/docs"
			original.Loader.Watch = true
			original.Events.Brokers = "a:9092,b:9092"
			original.Archive.Endpoint = "localhost:9000"
			original.Archive.UseSSL = true
			Expect(c.SaveConfig(original)).To(Succeed())

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(original))
		})
	})
})

var _ = Describe("ValidConfigKeys", func() {
	It("returns every key in section order", func() {
		keys := config.ValidConfigKeys()
		Expect(keys[0]).To(Equal("storage.driver"))
		Expect(keys).To(ContainElements("embedding.api_key", "index.nprobe", "loader.watch", "archive.use_ssl"))
		Expect(keys).To(HaveLen(27))
	})

	It("agrees with IsValidConfigKey", func() {
		for _, k := range config.ValidConfigKeys() {
			Expect(config.IsValidConfigKey(k)).To(BeTrue(), k)
		}
		Expect(config.IsValidConfigKey("storage")).To(BeFalse())
		Expect(config.IsValidConfigKey("sqlite_path")).To(BeFalse())
	})
})

var _ = Describe("PresetConfig", func() {
	It("returns the hash preset for offline use", func() {
		cfg, err := config.PresetConfig("hash")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Embedding.Provider).To(Equal("hash"))
		Expect(cfg.Embedding.Dimensions).To(Equal(uint(256)))
		Expect(cfg.Storage.Driver).To(Equal("filestore"))
	})

	It("returns the openai preset", func() {
		cfg, err := config.PresetConfig("openai")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Embedding.Model).To(Equal("text-embedding-3-small"))
		Expect(cfg.Embedding.Dimensions).To(Equal(uint(1536)))
	})

	It("is case-insensitive", func() {
		cfg, err := config.PresetConfig("OLLAMA")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Embedding.Provider).To(Equal("ollama"))
	})

	It("returns error for unknown preset", func() {
		_, err := config.PresetConfig("anthropic")
		Expect(err).To(MatchError(ContainSubstring("unknown preset")))
	})
})

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "viper-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("returns viper with defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		defaults := config.NewDefaultConfig()
		Expect(v.GetString("storage.driver")).To(Equal(defaults.Storage.Driver))
		Expect(v.GetString("index.metric")).To(Equal(defaults.Index.Metric))
		Expect(v.GetUint("query.max_top_k")).To(Equal(defaults.Query.MaxTopK))
		Expect(v.GetString("server.listen")).To(Equal(defaults.Server.Listen))
	})

	It("reads config file values over defaults", func() {
		data := `[storage]
driver = "sqlite"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("storage.driver")).To(Equal("sqlite"))
		Expect(v.GetString("index.metric")).To(Equal("cosine"))
	})

	It("env vars take precedence over config file values", func() {
		data := `[storage]
driver = "sqlite"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())
		GinkgoT().Setenv("DOCQUERY_STORAGE_DRIVER", "inmemory")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("storage.driver")).To(Equal("inmemory"))
	})
})

var _ = Describe("FromViper", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("materializes defaults", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		GinkgoT().Setenv(config.LegacyStorageEnv, "")

		Expect(config.FromViper(v)).To(Equal(config.NewDefaultConfig()))
	})

	It("derives the source dir from the legacy storage variable", func() {
		GinkgoT().Setenv(config.LegacyStorageEnv, "/app")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(config.FromViper(v).Loader.SourceDir).To(Equal(filepath.Join("/app", "storage")))
	})

	It("prefers an explicit source dir over the legacy variable", func() {
		GinkgoT().Setenv(config.LegacyStorageEnv, "/app")
		GinkgoT().Setenv("DOCQUERY_LOADER_SOURCE_DIR", "/docs")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(config.FromViper(v).Loader.SourceDir).To(Equal("/docs"))
	})
})

var _ = Describe("BindFlags", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("binds cobra flags to viper keys via registry", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.Registry, config.FlagListen, &listen)
		Expect(cmd.Flags().Set("listen", ":7777")).To(Succeed())

		config.BindRegisteredFlags(v, cmd, config.Registry, []string{config.FlagListen})
		Expect(v.GetString("server.listen")).To(Equal(":7777"))
	})

	It("falls through to config when flag not set", func() {
		data := `[server]
listen = ":5555"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.Registry, config.FlagListen, &listen)

		config.BindRegisteredFlags(v, cmd, config.Registry, []string{config.FlagListen})
		Expect(v.GetString("server.listen")).To(Equal(":5555"))
	})

	It("skips bindings for nonexistent registry keys", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		config.BindRegisteredFlags(v, cmd, config.FlagSet{}, []string{"nonexistent"})

		Expect(v.GetString("server.listen")).To(Equal(config.NewDefaultConfig().Server.Listen))
	})

	It("AddCoreFlags registers every core flag with registry defaults", func() {
		cmd := &cobra.Command{Use: "test"}
		config.AddCoreFlags(cmd, &config.FlagValues{})

		for _, key := range config.CoreFlags {
			Expect(cmd.Flags().Lookup(config.Registry[key].Name)).NotTo(BeNil(), key)
		}

		f := cmd.Flags().Lookup("storage-root")
		Expect(f.Shorthand).To(Equal("r"))

		dims := cmd.Flags().Lookup("embedding-dimensions")
		Expect(dims.DefValue).To(Equal("768"))
	})
})
