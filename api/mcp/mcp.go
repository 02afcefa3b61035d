// Package mcp provides an MCP (Model Context Protocol) server for the docquery
// engine. It exposes search and document management as tools, served over
// stdio or streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/docquery/api/search"
	"github.com/papercomputeco/docquery/pkg/engine"
	"github.com/papercomputeco/docquery/pkg/loader"
	"github.com/papercomputeco/docquery/pkg/storage"
	"github.com/papercomputeco/docquery/pkg/utils"
)

// Engine is the part of *engine.Engine the tools call.
type Engine interface {
	search.Querier
	Ingest(ctx context.Context, doc *storage.Document) (*storage.Document, error)
	Remove(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (*storage.Document, error)
	List(ctx context.Context) ([]string, error)
	Health(ctx context.Context) engine.Health
}

// Catalog answers questions about the markdown source files.
type Catalog interface {
	Documents(ctx context.Context) ([]string, error)
	Headings(ctx context.Context, filename string) ([]loader.Heading, error)
}

type Config struct {
	// Engine serves every tool.
	Engine Engine

	// Catalog enables the document_headings tool and file names in
	// list_documents. Optional.
	Catalog Catalog

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the docquery tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "docquery",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if c.Noop {
		// return the empty MCP server with no tools configured
		// if the noop flag is set (i.e., MCP capabilities are disabled)
		s.mcpServer = mcpServer
		return s, nil
	}

	if c.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        searchToolName,
		Description: searchDescription,
	}, s.handleSearch)
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        ingestToolName,
		Description: ingestDescription,
	}, s.handleIngest)
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        deleteToolName,
		Description: deleteDescription,
	}, s.handleDelete)
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        getToolName,
		Description: getDescription,
	}, s.handleGet)
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        listToolName,
		Description: listDescription,
	}, s.handleList)
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        healthToolName,
		Description: healthDescription,
	}, s.handleHealth)

	if c.Catalog != nil {
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        headingsToolName,
			Description: headingsDescription,
		}, s.handleHeadings)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves a single session over t until the client disconnects or ctx
// ends.
func (s *Server) Run(ctx context.Context, t mcp.Transport) error {
	return s.mcpServer.Run(ctx, t)
}

// RunStdio serves over stdin and stdout. Nothing else may write to stdout
// while it runs.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

// Connect starts a session over t and returns without waiting for it to end.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcpServer.Connect(ctx, t, nil)
}
