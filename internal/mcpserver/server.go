// Package mcpserver exposes QueryService over the Model Context Protocol
// (§4.10), registering search_documents (QuerySourceMCPSearch) and
// ask_question (QuerySourceMCPRag) tools and serving them over stdio.
// Grounded on cmd/quaero-mcp's server.NewMCPServer/AddTool/ServeStdio wiring.
package mcpserver

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/interfaces"
)

// Server wraps a QueryService behind an MCP stdio transport.
type Server struct {
	query  interfaces.QueryService
	config *common.MCPConfig
	logger arbor.ILogger
}

// New constructs a Server. config may be nil, in which case defaults apply.
func New(query interfaces.QueryService, config *common.MCPConfig, logger arbor.ILogger) *Server {
	return &Server{query: query, config: config, logger: logger}
}

// Serve builds the MCP server, registers its tools, and blocks serving
// requests over stdio until the transport closes or errors.
func (s *Server) Serve() error {
	name := "docuflow"
	if s.config != nil && s.config.Name != "" {
		name = s.config.Name
	}

	mcpServer := server.NewMCPServer(name, common.GetVersion(), server.WithToolCapabilities(true))

	mcpServer.AddTool(createSearchTool(), handleSearch(s.query, s.logger))
	mcpServer.AddTool(createAskTool(), handleAsk(s.query, s.logger))

	if err := server.ServeStdio(mcpServer); err != nil {
		return fmt.Errorf("mcp server failed: %w", err)
	}
	return nil
}
