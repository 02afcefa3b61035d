package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/docquery/api"
	apimcp "github.com/papercomputeco/docquery/api/mcp"
	"github.com/papercomputeco/docquery/api/search"
	"github.com/papercomputeco/docquery/pkg/engine"
	"github.com/papercomputeco/docquery/pkg/loader"
	"github.com/papercomputeco/docquery/pkg/logger"
	"github.com/papercomputeco/docquery/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/docquery/pkg/utils/test"
)

var _ = Describe("Server", func() {
	var (
		ctx      context.Context
		embedder *testutils.MockEmbedder
		eng      *engine.Engine
		server   *api.Server
	)

	do := func(method, target, body string) (int, []byte) {
		var r io.Reader
		if body != "" {
			r = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, target, r)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := server.App().Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp.StatusCode, data
	}

	BeforeEach(func() {
		ctx = context.Background()
		embedder = testutils.NewMockEmbedder()
		embedder.Set("cats are small domesticated felines that purr", []float32{1, 0, 0})
		embedder.Set("dogs are loyal canines that bark", []float32{0, 1, 0})
		embedder.Set("feline biology", []float32{0.9, 0.2, 0.1})

		var err error
		eng, err = engine.Open(ctx, engine.Config{Store: inmemory.NewDriver(), Embedder: embedder})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(eng.Close)

		server, err = api.NewServer(api.Config{Engine: eng}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("requires an engine", func() {
			_, err := api.NewServer(api.Config{}, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("engine is required")))
		})

		It("requires a logger", func() {
			_, err := api.NewServer(api.Config{Engine: eng}, nil)
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})
	})

	Describe("GET /ping", func() {
		It("returns pong", func() {
			status, body := do(http.MethodGet, "/ping", "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(string(body)).To(Equal(`"pong"`))
		})
	})

	Describe("GET /health", func() {
		It("reports a ready engine", func() {
			status, body := do(http.MethodGet, "/health", "")
			Expect(status).To(Equal(http.StatusOK))

			var h engine.Health
			Expect(json.Unmarshal(body, &h)).To(Succeed())
			Expect(h.Ready).To(BeTrue())
			Expect(h.Dimensions).To(Equal(3))
		})

		It("returns 503 once the engine is closed", func() {
			Expect(eng.Close()).To(Succeed())
			status, _ := do(http.MethodGet, "/health", "")
			Expect(status).To(Equal(http.StatusServiceUnavailable))
		})
	})

	Describe("documents", func() {
		BeforeEach(func() {
			status, _ := do(http.MethodPost, "/v1/documents",
				`{"id":"cats","text":"cats are small domesticated felines that purr","metadata":{"kind":"animal","legs":4}}`)
			Expect(status).To(Equal(http.StatusOK))
			status, _ = do(http.MethodPost, "/v1/documents",
				`{"id":"dogs","text":"dogs are loyal canines that bark","metadata":{"kind":"animal"}}`)
			Expect(status).To(Equal(http.StatusOK))
		})

		It("answers the feline biology query", func() {
			status, body := do(http.MethodPost, "/v1/query", `{"query":"feline biology","top_k":1}`)
			Expect(status).To(Equal(http.StatusOK))

			var out search.SearchOutput
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Count).To(Equal(1))
			Expect(out.Results[0].ID).To(Equal("cats"))
		})

		It("keeps integer metadata as integers", func() {
			doc, err := eng.Get(ctx, "cats")
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Metadata["legs"]).To(Equal(int64(4)))
		})

		It("filters on integer metadata", func() {
			status, body := do(http.MethodPost, "/v1/query",
				`{"query":"feline biology","where":[{"field":"legs","op":"gte","value":4}]}`)
			Expect(status).To(Equal(http.StatusOK))

			var out search.SearchOutput
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Results).To(HaveLen(1))
			Expect(out.Results[0].ID).To(Equal("cats"))
		})

		It("returns 400 for a query with neither text nor vector", func() {
			status, body := do(http.MethodPost, "/v1/query", `{"top_k":3}`)
			Expect(status).To(Equal(http.StatusBadRequest))

			var e api.ErrorResponse
			Expect(json.Unmarshal(body, &e)).To(Succeed())
			Expect(e.Error).To(Equal("invalid request"))
		})

		It("returns 400 for malformed JSON", func() {
			status, _ := do(http.MethodPost, "/v1/query", `{"query":`)
			Expect(status).To(Equal(http.StatusBadRequest))
		})

		It("returns 503 when the embedding provider fails", func() {
			embedder.FailOn = "feline biology"
			status, body := do(http.MethodPost, "/v1/query", `{"query":"feline biology"}`)
			Expect(status).To(Equal(http.StatusServiceUnavailable))

			var e api.ErrorResponse
			Expect(json.Unmarshal(body, &e)).To(Succeed())
			Expect(e.Error).To(Equal("retry later"))
		})

		It("lists ids in insertion order", func() {
			status, body := do(http.MethodGet, "/v1/documents", "")
			Expect(status).To(Equal(http.StatusOK))

			var out apimcp.ListOutput
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.IDs).To(Equal([]string{"cats", "dogs"}))
			Expect(out.Count).To(Equal(2))
		})

		It("gets a document with and without its vector", func() {
			status, body := do(http.MethodGet, "/v1/documents/cats", "")
			Expect(status).To(Equal(http.StatusOK))

			var out apimcp.DocumentOutput
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Text).To(Equal("cats are small domesticated felines that purr"))
			Expect(out.Vector).To(BeEmpty())

			_, body = do(http.MethodGet, "/v1/documents/cats?include_vector=true", "")
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Vector).To(Equal([]float32{1, 0, 0}))
		})

		It("returns 404 for an unknown document", func() {
			status, body := do(http.MethodGet, "/v1/documents/missing", "")
			Expect(status).To(Equal(http.StatusNotFound))

			var e api.ErrorResponse
			Expect(json.Unmarshal(body, &e)).To(Succeed())
			Expect(e.Error).To(Equal("not found"))
		})

		It("deletes idempotently", func() {
			status, body := do(http.MethodDelete, "/v1/documents/cats", "")
			Expect(status).To(Equal(http.StatusOK))

			var out apimcp.DeleteOutput
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Deleted).To(BeTrue())

			status, body = do(http.MethodDelete, "/v1/documents/cats", "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Deleted).To(BeFalse())

			status, _ = do(http.MethodGet, "/v1/documents/cats", "")
			Expect(status).To(Equal(http.StatusNotFound))
		})

		It("rejects nested metadata", func() {
			status, _ := do(http.MethodPost, "/v1/documents",
				`{"id":"bad","text":"x","metadata":{"nested":{"a":1}}}`)
			Expect(status).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("with a catalog", func() {
		var ldr *loader.Loader

		BeforeEach(func() {
			dir := GinkgoT().TempDir()
			Expect(os.WriteFile(filepath.Join(dir, "guide.md"),
				[]byte("## Cats\ncats purr\n\n## Dogs\ndogs bark\n"), 0o644)).To(Succeed())

			ldr = loader.New(eng)
			_, err := ldr.Sync(ctx, dir)
			Expect(err).NotTo(HaveOccurred())

			server, err = api.NewServer(api.Config{Engine: eng, Catalog: ldr}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
		})

		It("addresses chunk ids with an escaped hash", func() {
			status, body := do(http.MethodGet, "/v1/documents/"+url.PathEscape("guide.md#1"), "")
			Expect(status).To(Equal(http.StatusOK))

			var out apimcp.DocumentOutput
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Text).To(Equal("dogs bark"))
		})

		It("lists source files", func() {
			status, body := do(http.MethodGet, "/v1/files", "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring(`"guide.md"`))
		})

		It("lists the headings of a file", func() {
			status, body := do(http.MethodGet, "/v1/files/guide.md/headings", "")
			Expect(status).To(Equal(http.StatusOK))

			var out apimcp.HeadingsOutput
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Headings).To(HaveLen(2))
			Expect(out.Headings[0].H2).To(Equal("Cats"))
		})

		It("returns 404 for an unknown file", func() {
			status, _ := do(http.MethodGet, "/v1/files/nope.md/headings", "")
			Expect(status).To(Equal(http.StatusNotFound))
		})
	})

	Describe("/mcp", func() {
		It("serves the MCP handler", func() {
			mcpServer, err := apimcp.NewServer(apimcp.Config{Engine: eng, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())

			server, err = api.NewServer(api.Config{Engine: eng, MCP: mcpServer}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())

			req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(
				`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"t","version":"1"}}}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json, text/event-stream")

			resp, err := server.App().Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("serverInfo"))
		})
	})
})
