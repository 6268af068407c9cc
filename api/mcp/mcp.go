// Package mcp provides an MCP (Model Context Protocol) server exposing
// memory administration and context retention as tools.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/mnemosyne/pkg/memory"
	"github.com/papercomputeco/mnemosyne/pkg/retention"
	"github.com/papercomputeco/mnemosyne/pkg/utils"
)

type Config struct {
	// Service answers every memory tool
	Service *memory.Service

	// Budget is the default retention budget for filter_context
	Budget retention.Budget

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	retention *retention.Engine
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools registered.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "mnemosyne",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)
	s.mcpServer = mcpServer

	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	if c.Noop {
		// no tools when MCP capabilities are disabled
		return s, nil
	}

	if c.Service == nil {
		return nil, errors.New("memory service is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}
	s.retention = retention.New(c.Logger)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        listCollectionsToolName,
		Description: listCollectionsDescription,
	}, s.handleListCollections)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        listMemoriesToolName,
		Description: listMemoriesDescription,
	}, s.handleListMemories)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        forgetSessionToolName,
		Description: forgetSessionDescription,
	}, s.handleForgetSession)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        summarizeToolName,
		Description: summarizeDescription,
	}, s.handleSummarize)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        filterContextToolName,
		Description: filterContextDescription,
	}, s.handleFilterContext)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying server, for transports other than HTTP.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
