package mcp_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/docquery/api/mcp"
	"github.com/papercomputeco/docquery/pkg/engine"
	"github.com/papercomputeco/docquery/pkg/loader"
	"github.com/papercomputeco/docquery/pkg/logger"
	"github.com/papercomputeco/docquery/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/docquery/pkg/utils/test"
)

// connect serves s over an in-memory transport and returns a client session.
func connect(ctx context.Context, s *mcp.Server) *gomcp.ClientSession {
	serverTransport, clientTransport := gomcp.NewInMemoryTransports()

	serverSession, err := s.Connect(ctx, serverTransport)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(serverSession.Close)

	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(session.Close)
	return session
}

func call(ctx context.Context, session *gomcp.ClientSession, tool string, args map[string]any) *gomcp.CallToolResult {
	res, err := session.CallTool(ctx, &gomcp.CallToolParams{Name: tool, Arguments: args})
	Expect(err).NotTo(HaveOccurred())
	return res
}

// decode reads the JSON text block every successful tool result carries.
func decode(res *gomcp.CallToolResult, v any) {
	Expect(res.IsError).To(BeFalse(), "tool error: %v", text(res))
	Expect(json.Unmarshal([]byte(text(res)), v)).To(Succeed())
}

func text(res *gomcp.CallToolResult) string {
	Expect(res.Content).NotTo(BeEmpty())
	tc, ok := res.Content[0].(*gomcp.TextContent)
	Expect(ok).To(BeTrue())
	return tc.Text
}

var _ = Describe("MCP Server", func() {
	var (
		ctx      context.Context
		embedder *testutils.MockEmbedder
		eng      *engine.Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		embedder = testutils.NewMockEmbedder()
		embedder.Set("cats are small domesticated felines that purr", []float32{1, 0, 0})
		embedder.Set("dogs are loyal canines that bark", []float32{0, 1, 0})
		embedder.Set("goldfish live in bowls of water", []float32{0, 0, 1})
		embedder.Set("feline biology", []float32{0.9, 0.2, 0.1})

		var err error
		eng, err = engine.Open(ctx, engine.Config{Store: inmemory.NewDriver(), Embedder: embedder})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(eng.Close)
	})

	Describe("NewServer", func() {
		It("returns an error when engine is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("engine is required")))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Engine: eng})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("creates a server with valid config", func() {
			server, err := mcp.NewServer(mcp.Config{Engine: eng, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})

		It("creates an empty server when noop", func() {
			server, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(server).NotTo(BeNil())
		})
	})

	Describe("tools", func() {
		var (
			session *gomcp.ClientSession
			dir     string
		)

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
			ld := loader.New(eng)

			server, err := mcp.NewServer(mcp.Config{Engine: eng, Catalog: ld, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())
			session = connect(ctx, server)

			Expect(os.WriteFile(filepath.Join(dir, "guide.md"), []byte("## Install\nrun the installer\n### Linux\nuse the tarball\n"), 0o644)).To(Succeed())
			_, err = ld.Sync(ctx, dir)
			Expect(err).NotTo(HaveOccurred())
		})

		ingest := func(id, text string, meta map[string]any) {
			args := map[string]any{"id": id, "text": text}
			if meta != nil {
				args["metadata"] = meta
			}
			res := call(ctx, session, "ingest_document", args)
			var out mcp.DocumentOutput
			decode(res, &out)
			Expect(out.ID).To(Equal(id))
		}

		It("lists every tool", func() {
			res, err := session.ListTools(ctx, nil)
			Expect(err).NotTo(HaveOccurred())

			var names []string
			for _, tool := range res.Tools {
				names = append(names, tool.Name)
			}
			Expect(names).To(ConsistOf(
				"search", "ingest_document", "delete_document", "get_document",
				"list_documents", "document_headings", "health",
			))
		})

		It("answers the feline biology query", func() {
			ingest("cat", "cats are small domesticated felines that purr", map[string]any{"kind": "mammal"})
			ingest("dog", "dogs are loyal canines that bark", map[string]any{"kind": "mammal"})
			ingest("fish", "goldfish live in bowls of water", map[string]any{"kind": "fish"})

			res := call(ctx, session, "search", map[string]any{"query": "feline biology", "top_k": 2})
			var out struct {
				Results []struct {
					ID    string  `json:"id"`
					Score float32 `json:"score"`
				} `json:"results"`
				Count int `json:"count"`
			}
			decode(res, &out)
			Expect(out.Count).To(Equal(2))
			Expect(out.Results[0].ID).To(Equal("cat"))
			Expect(out.Results[0].Score).To(BeNumerically(">", out.Results[1].Score))
			Expect(res.StructuredContent).NotTo(BeNil())
		})

		It("filters search results by metadata", func() {
			ingest("cat", "cats are small domesticated felines that purr", map[string]any{"kind": "mammal"})
			ingest("fish", "goldfish live in bowls of water", map[string]any{"kind": "fish"})

			res := call(ctx, session, "search", map[string]any{
				"query":  "feline biology",
				"filter": map[string]any{"kind": "fish"},
			})
			var out struct {
				Results []struct {
					ID string `json:"id"`
				} `json:"results"`
			}
			decode(res, &out)
			Expect(out.Results).To(HaveLen(1))
			Expect(out.Results[0].ID).To(Equal("fish"))
		})

		It("reports invalid queries as invalid requests", func() {
			res := call(ctx, session, "search", map[string]any{"query": "x", "top_k": 0})
			Expect(res.IsError).To(BeTrue())
			Expect(text(res)).To(HavePrefix("invalid request"))

			res = call(ctx, session, "search", map[string]any{})
			Expect(res.IsError).To(BeTrue())
			Expect(text(res)).To(HavePrefix("invalid request"))
		})

		It("reports embedding failures as retryable", func() {
			embedder.FailOn = "flaky"
			res := call(ctx, session, "search", map[string]any{"query": "flaky"})
			Expect(res.IsError).To(BeTrue())
			Expect(text(res)).To(HavePrefix("retry later"))
		})

		It("gets, deletes and reports missing documents", func() {
			ingest("cat", "cats are small domesticated felines that purr", nil)

			var doc mcp.DocumentOutput
			decode(call(ctx, session, "get_document", map[string]any{"id": "cat", "include_vector": true}), &doc)
			Expect(doc.Text).To(Equal("cats are small domesticated felines that purr"))
			Expect(doc.Vector).To(Equal([]float32{1, 0, 0}))
			Expect(doc.CreatedAt).NotTo(BeEmpty())

			var del mcp.DeleteOutput
			decode(call(ctx, session, "delete_document", map[string]any{"id": "cat"}), &del)
			Expect(del.Deleted).To(BeTrue())

			decode(call(ctx, session, "delete_document", map[string]any{"id": "cat"}), &del)
			Expect(del.Deleted).To(BeFalse())

			res := call(ctx, session, "get_document", map[string]any{"id": "cat"})
			Expect(res.IsError).To(BeTrue())
			Expect(text(res)).To(HavePrefix("not found"))
		})

		It("rejects nested metadata", func() {
			res := call(ctx, session, "ingest_document", map[string]any{
				"id":       "bad",
				"text":     "nested",
				"metadata": map[string]any{"tags": []any{"a"}},
			})
			Expect(res.IsError).To(BeTrue())
			Expect(text(res)).To(HavePrefix("invalid request"))
		})

		It("lists documents and source files", func() {
			ingest("manual", "typed in", nil)

			var out mcp.ListOutput
			decode(call(ctx, session, "list_documents", map[string]any{}), &out)
			Expect(out.IDs).To(Equal([]string{"guide.md#0", "guide.md#1", "manual"}))
			Expect(out.Count).To(Equal(3))
			Expect(out.Files).To(Equal([]string{"guide.md"}))
		})

		It("lists the headings of a source file", func() {
			var out mcp.HeadingsOutput
			decode(call(ctx, session, "document_headings", map[string]any{"filename": "guide.md"}), &out)
			Expect(out.Headings).To(HaveLen(2))
			Expect(out.Headings[0].Title).To(Equal("Install"))
			Expect(out.Headings[1].Title).To(Equal("Linux"))
			Expect(out.Headings[1].Level).To(Equal(3))

			res := call(ctx, session, "document_headings", map[string]any{"filename": "missing.md"})
			Expect(res.IsError).To(BeTrue())
			Expect(text(res)).To(HavePrefix("not found"))
		})

		It("reports health", func() {
			var h engine.Health
			decode(call(ctx, session, "health", map[string]any{}), &h)
			Expect(h.Ready).To(BeTrue())
			Expect(h.CorpusSize).To(Equal(2))
			Expect(h.Dimensions).To(Equal(3))
			Expect(h.Metric).To(Equal("cosine"))
		})
	})
})
