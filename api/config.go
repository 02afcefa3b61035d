// Package api provides the docquery HTTP API: a small REST surface over the
// engine with the MCP server mounted at /mcp.
package api

import (
	apimcp "github.com/papercomputeco/docquery/api/mcp"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// Engine serves every route.
	Engine apimcp.Engine

	// Catalog serves the source file routes. Optional.
	Catalog apimcp.Catalog

	// MCP is mounted at /mcp when set.
	MCP *apimcp.Server
}
