package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/docquery/pkg/embeddings"
	"github.com/papercomputeco/docquery/pkg/embeddings/ollama"
)

var _ = Describe("Embedder", func() {
	var (
		server *httptest.Server
		status int
		gotReq map[string]string
	)

	BeforeEach(func() {
		status = http.StatusOK
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/api/embed"))
			Expect(json.NewDecoder(r.Body).Decode(&gotReq)).To(Succeed())

			if status != http.StatusOK {
				w.WriteHeader(status)
				_, _ = w.Write([]byte("model loading"))
				return
			}
			_, _ = w.Write([]byte(`{"embeddings":[[0.5,0.25,-1]]}`))
		}))
		DeferCleanup(server.Close)
	})

	It("posts the model and input and returns the first embedding", func() {
		e, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: server.URL, Model: "all-minilm"})
		Expect(err).NotTo(HaveOccurred())

		v, err := e.Embed(context.Background(), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal([]float32{0.5, 0.25, -1}))
		Expect(gotReq).To(HaveKeyWithValue("model", "all-minilm"))
		Expect(gotReq).To(HaveKeyWithValue("input", "hello"))
	})

	It("uses the default model when none is configured", func() {
		e, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		_, err = e.Embed(context.Background(), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(gotReq).To(HaveKeyWithValue("model", ollama.DefaultEmbeddingModel))
	})

	It("reports non-200 responses as unavailable", func() {
		status = http.StatusServiceUnavailable
		e, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		_, err = e.Embed(context.Background(), "hello")
		Expect(errors.Is(err, embeddings.ErrUnavailable)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("model loading"))
	})

	It("reports an unreachable server as unavailable", func() {
		e, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: "http://127.0.0.1:1"})
		Expect(err).NotTo(HaveOccurred())

		_, err = e.Embed(context.Background(), "hello")
		Expect(errors.Is(err, embeddings.ErrUnavailable)).To(BeTrue())
	})
})
