package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/docquery/api/errclass"
	"github.com/papercomputeco/docquery/api/search"
	"github.com/papercomputeco/docquery/pkg/engine"
	"github.com/papercomputeco/docquery/pkg/loader"
	"github.com/papercomputeco/docquery/pkg/logger"
	"github.com/papercomputeco/docquery/pkg/storage"
)

var (
	searchToolName    = "search"
	searchDescription = "Semantic search over the document corpus. Give either query text or a query vector. Returns the most similar documents, best first, optionally filtered by metadata."

	ingestToolName    = "ingest_document"
	ingestDescription = "Store a document, replacing any document with the same id, and make it searchable. The text is embedded unless a vector is supplied."

	deleteToolName    = "delete_document"
	deleteDescription = "Delete a document by id. Deleting an unknown id succeeds and reports deleted=false."

	getToolName    = "get_document"
	getDescription = "Fetch a stored document by id."

	listToolName    = "list_documents"
	listDescription = "List every document id in insertion order, plus the distinct markdown source files the corpus was loaded from."

	headingsToolName    = "document_headings"
	headingsDescription = "List the distinct heading paths (h2, h3, h4) of a markdown source file, in document order."

	healthToolName    = "health"
	healthDescription = "Report whether the engine is ready, the corpus size, vector dimensions, similarity metric and search strategy."
)

// IngestInput is a document to store.
type IngestInput struct {
	ID       string         `json:"id" jsonschema:"unique document id"`
	Text     string         `json:"text,omitempty" jsonschema:"document text"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"flat metadata of strings, numbers and booleans"`
	Vector   []float32      `json:"vector,omitempty" jsonschema:"precomputed embedding; skips embedding the text"`
}

// DocumentOutput is a stored document.
type DocumentOutput struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Vector    []float32      `json:"vector,omitempty"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

// IDInput names one document.
type IDInput struct {
	ID string `json:"id" jsonschema:"document id"`
}

// GetInput names one document to fetch.
type GetInput struct {
	ID            string `json:"id" jsonschema:"document id"`
	IncludeVector bool   `json:"include_vector,omitempty" jsonschema:"also return the stored embedding"`
}

// DeleteOutput reports a delete.
type DeleteOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// ListInput takes no arguments.
type ListInput struct{}

// ListOutput lists the corpus.
type ListOutput struct {
	IDs   []string `json:"ids"`
	Count int      `json:"count"`
	Files []string `json:"files,omitempty"`
}

// HeadingsInput names a markdown source file.
type HeadingsInput struct {
	Filename string `json:"filename" jsonschema:"source file name as listed by list_documents"`
}

// HeadingsOutput lists the headings of one file.
type HeadingsOutput struct {
	Filename string           `json:"filename"`
	Headings []loader.Heading `json:"headings"`
}

// HealthInput takes no arguments.
type HealthInput struct{}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input search.SearchInput) (*mcp.CallToolResult, search.SearchOutput, error) {
	output, err := search.Search(ctx, s.config.Engine, input, s.config.Logger)
	if err != nil {
		return s.toolError(searchToolName, err), search.SearchOutput{}, nil
	}
	return s.toolResult(searchToolName, output), *output, nil
}

func (s *Server) handleIngest(ctx context.Context, _ *mcp.CallToolRequest, input IngestInput) (*mcp.CallToolResult, DocumentOutput, error) {
	stored, err := s.config.Engine.Ingest(ctx, &storage.Document{
		ID:       input.ID,
		Text:     input.Text,
		Metadata: input.Metadata,
		Vector:   input.Vector,
	})
	if err != nil {
		return s.toolError(ingestToolName, err), DocumentOutput{}, nil
	}

	output := documentOutput(stored, false)
	return s.toolResult(ingestToolName, output), output, nil
}

func (s *Server) handleDelete(ctx context.Context, _ *mcp.CallToolRequest, input IDInput) (*mcp.CallToolResult, DeleteOutput, error) {
	deleted, err := s.config.Engine.Remove(ctx, input.ID)
	if err != nil {
		return s.toolError(deleteToolName, err), DeleteOutput{}, nil
	}

	output := DeleteOutput{ID: input.ID, Deleted: deleted}
	return s.toolResult(deleteToolName, output), output, nil
}

func (s *Server) handleGet(ctx context.Context, _ *mcp.CallToolRequest, input GetInput) (*mcp.CallToolResult, DocumentOutput, error) {
	doc, err := s.config.Engine.Get(ctx, input.ID)
	if err != nil {
		return s.toolError(getToolName, err), DocumentOutput{}, nil
	}

	output := documentOutput(doc, input.IncludeVector)
	return s.toolResult(getToolName, output), output, nil
}

func (s *Server) handleList(ctx context.Context, _ *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, ListOutput, error) {
	ids, err := s.config.Engine.List(ctx)
	if err != nil {
		return s.toolError(listToolName, err), ListOutput{}, nil
	}
	if ids == nil {
		ids = []string{}
	}

	output := ListOutput{IDs: ids, Count: len(ids)}
	if s.config.Catalog != nil {
		output.Files, err = s.config.Catalog.Documents(ctx)
		if err != nil {
			return s.toolError(listToolName, err), ListOutput{}, nil
		}
	}
	return s.toolResult(listToolName, output), output, nil
}

func (s *Server) handleHeadings(ctx context.Context, _ *mcp.CallToolRequest, input HeadingsInput) (*mcp.CallToolResult, HeadingsOutput, error) {
	headings, err := s.config.Catalog.Headings(ctx, input.Filename)
	if err != nil {
		return s.toolError(headingsToolName, err), HeadingsOutput{}, nil
	}

	output := HeadingsOutput{Filename: input.Filename, Headings: headings}
	return s.toolResult(headingsToolName, output), output, nil
}

func (s *Server) handleHealth(ctx context.Context, _ *mcp.CallToolRequest, _ HealthInput) (*mcp.CallToolResult, engine.Health, error) {
	output := s.config.Engine.Health(ctx)
	return s.toolResult(healthToolName, output), output, nil
}

func documentOutput(doc *storage.Document, withVector bool) DocumentOutput {
	out := DocumentOutput{
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

// toolResult serializes the structured output as JSON for the text field.
// Per the MCP protocol, tools returning structured content should also return
// serialized JSON in a TextContent block for backwards compatibility
func (s *Server) toolResult(tool string, output any) *mcp.CallToolResult {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		s.config.Logger.Error("failed to marshal tool output", "tool", tool, logger.Err(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}
}

// toolError reports err to the client as a tool error labelled with its
// class, so agents can tell a bad request from a transient failure.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	class := errclass.Of(err)
	if class == errclass.Internal || class == errclass.Unavailable {
		s.config.Logger.Error("tool call failed", "tool", tool, logger.Err(err))
	} else {
		s.config.Logger.Debug("tool call rejected", "tool", tool, logger.Err(err))
	}

	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%s: %v", class.Message(), err)},
		},
	}
}
