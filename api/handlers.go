package api

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/docquery/api/errclass"
	apimcp "github.com/papercomputeco/docquery/api/mcp"
	"github.com/papercomputeco/docquery/api/search"
	"github.com/papercomputeco/docquery/pkg/logger"
	"github.com/papercomputeco/docquery/pkg/storage"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// handlePing returns a simple liveness response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleHealth reports readiness; 503 until the engine is ready.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	h := s.config.Engine.Health(c.Context())
	if !h.Ready {
		c.Status(fiber.StatusServiceUnavailable)
	}
	return c.JSON(h)
}

// handleQuery handles POST /v1/query with a search.SearchInput body.
func (s *Server) handleQuery(c *fiber.Ctx) error {
	var input search.SearchInput
	if err := decodeBody(c, &input); err != nil {
		return badRequest(c, err)
	}

	output, err := search.Search(c.Context(), s.config.Engine, input, s.logger)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(output)
}

// handleIngest handles POST /v1/documents.
func (s *Server) handleIngest(c *fiber.Ctx) error {
	var input apimcp.IngestInput
	if err := decodeBody(c, &input); err != nil {
		return badRequest(c, err)
	}

	stored, err := s.config.Engine.Ingest(c.Context(), &storage.Document{
		ID:       input.ID,
		Text:     input.Text,
		Metadata: input.Metadata,
		Vector:   input.Vector,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(documentResponse(stored, false))
}

// handleList handles GET /v1/documents.
func (s *Server) handleList(c *fiber.Ctx) error {
	ids, err := s.config.Engine.List(c.Context())
	if err != nil {
		return s.fail(c, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(apimcp.ListOutput{IDs: ids, Count: len(ids)})
}

// handleGet handles GET /v1/documents/:id. Pass include_vector=true to
// also receive the embedding.
func (s *Server) handleGet(c *fiber.Ctx) error {
	id, err := param(c, "id")
	if err != nil {
		return badRequest(c, err)
	}

	doc, err := s.config.Engine.Get(c.Context(), id)
	if err != nil {
		return s.fail(c, err)
	}

	withVector, _ := strconv.ParseBool(c.Query("include_vector"))
	return c.JSON(documentResponse(doc, withVector))
}

// handleDelete handles DELETE /v1/documents/:id. Deleting an unknown id
// succeeds with deleted=false.
func (s *Server) handleDelete(c *fiber.Ctx) error {
	id, err := param(c, "id")
	if err != nil {
		return badRequest(c, err)
	}

	deleted, err := s.config.Engine.Remove(c.Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(apimcp.DeleteOutput{ID: id, Deleted: deleted})
}

// handleFiles handles GET /v1/files.
func (s *Server) handleFiles(c *fiber.Ctx) error {
	files, err := s.config.Catalog.Documents(c.Context())
	if err != nil {
		return s.fail(c, err)
	}
	if files == nil {
		files = []string{}
	}
	return c.JSON(fiber.Map{"files": files, "count": len(files)})
}

// handleHeadings handles GET /v1/files/:filename/headings.
func (s *Server) handleHeadings(c *fiber.Ctx) error {
	filename, err := param(c, "filename")
	if err != nil {
		return badRequest(c, err)
	}

	headings, err := s.config.Catalog.Headings(c.Context(), filename)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(apimcp.HeadingsOutput{Filename: filename, Headings: headings})
}

// fail writes err with the status of its class.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	class := errclass.Of(err)
	if class == errclass.Internal || class == errclass.Unavailable {
		s.logger.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			logger.Err(err),
		)
	}

	return c.Status(class.HTTPStatus()).JSON(ErrorResponse{
		Error:  class.Message(),
		Detail: err.Error(),
	})
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:  errclass.Invalid.Message(),
		Detail: err.Error(),
	})
}

// decodeBody unmarshals a JSON body keeping integers exact, so integer
// metadata is stored as an integer rather than a float.
func decodeBody(c *fiber.Ctx, v any) error {
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.UseNumber()
	return dec.Decode(v)
}

// param returns the unescaped route parameter, so ids containing "#" or
// "/" can be addressed when percent-encoded.
func param(c *fiber.Ctx, name string) (string, error) {
	return url.PathUnescape(c.Params(name))
}

func documentResponse(doc *storage.Document, withVector bool) apimcp.DocumentOutput {
	out := apimcp.DocumentOutput{
		ID:        doc.ID,
		Text:      doc.Text,
		Metadata:  doc.Metadata,
		CreatedAt: doc.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: doc.UpdatedAt.Format(time.RFC3339Nano),
	}
	if withVector {
		out.Vector = doc.Vector
	}
	return out
}
