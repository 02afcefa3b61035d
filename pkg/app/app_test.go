package app_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"

	"github.com/papercomputeco/docquery/pkg/app"
	"github.com/papercomputeco/docquery/pkg/config"
	"github.com/papercomputeco/docquery/pkg/engine"
	"github.com/papercomputeco/docquery/pkg/eventstream/async"
	"github.com/papercomputeco/docquery/pkg/eventstream/nop"
	"github.com/papercomputeco/docquery/pkg/loader"
	"github.com/papercomputeco/docquery/pkg/logger"
	"github.com/papercomputeco/docquery/pkg/storage"
)

func hashConfig(root string) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Storage.Root = root
	cfg.Embedding.Provider = "hash"
	cfg.Embedding.Model = "fnv"
	cfg.Embedding.Dimensions = 64
	return cfg
}

var _ = Describe("App", func() {
	var (
		ctx  context.Context
		root string
	)

	BeforeEach(func() {
		ctx = context.Background()
		root = GinkgoT().TempDir()
	})

	It("opens a filestore corpus that survives a restart", func() {
		cfg := hashConfig(root)

		a, err := app.Open(ctx, cfg, nil, app.Options{})
		Expect(err).NotTo(HaveOccurred())
		_, err = a.Engine.Ingest(ctx, &storage.Document{ID: "one", Text: "retrieval over markdown"})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Close()).To(Succeed())

		a, err = app.Open(ctx, cfg, nil, app.Options{})
		Expect(err).NotTo(HaveOccurred())
		defer a.Close()

		h := a.Engine.Health(ctx)
		Expect(h.Ready).To(BeTrue())
		Expect(h.CorpusSize).To(Equal(1))
		Expect(h.Dimensions).To(Equal(64))
		Expect(h.Provider).To(Equal("hash"))
	})

	It("refuses a corpus embedded by another model unless reindexing", func() {
		cfg := hashConfig(root)
		a, err := app.Open(ctx, cfg, nil, app.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Close()).To(Succeed())

		cfg.Embedding.Dimensions = 32
		_, err = app.Open(ctx, cfg, nil, app.Options{})
		Expect(err).To(MatchError(engine.ErrCorpusMismatch))

		a, err = app.Open(ctx, cfg, nil, app.Options{Reindex: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Engine.Dimensions()).To(Equal(32))
		Expect(a.Close()).To(Succeed())
	})

	It("keeps nothing on disk when ephemeral", func() {
		a, err := app.Open(ctx, hashConfig(root), nil, app.Options{Ephemeral: true})
		Expect(err).NotTo(HaveOccurred())
		defer a.Close()

		_, err = a.Engine.Ingest(ctx, &storage.Document{ID: "one", Text: "text"})
		Expect(err).NotTo(HaveOccurred())

		entries, err := os.ReadDir(root)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})

	It("rejects an unknown metric before touching the store", func() {
		cfg := hashConfig(root)
		cfg.Index.Metric = "euclidean"
		_, err := app.Open(ctx, cfg, nil, app.Options{})
		Expect(err).To(HaveOccurred())
	})

	It("rejects an unknown embedding provider", func() {
		cfg := hashConfig(root)
		cfg.Embedding.Provider = "carrier-pigeon"
		_, err := app.Open(ctx, cfg, nil, app.Options{})
		Expect(err).To(MatchError(ContainSubstring("unsupported embedding provider")))
	})

	It("syncs the configured source directory", func() {
		src := filepath.Join(root, "storage")
		Expect(os.MkdirAll(src, 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(src, "guide.md"), []byte("## Intro\nhello\n## Usage\nrun it\n"), 0o644)).To(Succeed())

		cfg := hashConfig(filepath.Join(root, "data"))
		cfg.Loader.SourceDir = src

		a, err := app.Open(ctx, cfg, nil, app.Options{})
		Expect(err).NotTo(HaveOccurred())
		defer a.Close()

		Expect(a.SyncSource(ctx)).To(Succeed())
		ids, err := a.Engine.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal([]string{"guide.md#0", "guide.md#1"}))
	})

	It("stops watching the source directory before closing the engine", func() {
		src := filepath.Join(root, "storage")
		Expect(os.MkdirAll(src, 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(src, "guide.md"), []byte("## Intro\nhello\n"), 0o644)).To(Succeed())

		cfg := hashConfig(filepath.Join(root, "data"))
		cfg.Loader.SourceDir = src
		cfg.Loader.Watch = true

		logs := gbytes.NewBuffer()
		log := logger.New(logger.WithJSON(true), logger.WithWriter(logs))

		a, err := app.Open(ctx, cfg, log, app.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.SyncSource(ctx)).To(Succeed())
		Eventually(func() ([]string, error) { return a.Engine.List(ctx) }, "5s").Should(Equal([]string{"guide.md#0"}))

		Expect(a.Close()).To(Succeed())
		Expect(os.WriteFile(filepath.Join(src, "late.md"), []byte("## Late\nbody\n"), 0o644)).To(Succeed())

		Consistently(logs.Contents, loader.DefaultDebounce+500*time.Millisecond).ShouldNot(ContainSubstring(`"level":"ERROR"`))
	})
})

var _ = Describe("NewPublisher", func() {
	It("defaults to the nop publisher", func() {
		p, err := app.NewPublisher(config.EventsConfig{}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&nop.Publisher{}))
	})

	It("builds a kafka publisher from a broker list", func() {
		p, err := app.NewPublisher(config.EventsConfig{
			Provider: app.EventsKafka,
			Brokers:  "kafka-1:9092, kafka-2:9092",
			Topic:    "docquery.mutations",
		}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&async.Publisher{}))
		Expect(p.Close()).To(Succeed())
	})

	It("requires kafka brokers", func() {
		_, err := app.NewPublisher(config.EventsConfig{Provider: app.EventsKafka, Brokers: " , ", Topic: "t"}, logger.Nop())
		Expect(err).To(HaveOccurred())
	})

	It("rejects unknown providers", func() {
		_, err := app.NewPublisher(config.EventsConfig{Provider: "pigeon"}, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("unsupported events provider")))
	})
})

var _ = Describe("NewBucket", func() {
	It("returns nil without a configured bucket", func() {
		b, err := app.NewBucket(config.ArchiveConfig{})
		Expect(err).NotTo(HaveOccurred())
		Expect(b).To(BeNil())
	})

	It("prefixes archive keys", func() {
		b, err := app.NewBucket(config.ArchiveConfig{Endpoint: "localhost:9000", Bucket: "backups"})
		Expect(err).NotTo(HaveOccurred())
		Expect(b.Key("corpus.jsonl.zst")).To(Equal("docquery/corpus.jsonl.zst"))
	})
})
