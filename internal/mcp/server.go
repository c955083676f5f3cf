// Package mcp exposes task dispatch to MCP clients over stdio.
package mcp

import (
	"context"
	"errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/taskgate/internal/catalogue"
	"github.com/ppiankov/taskgate/internal/dispatch"
)

// Backend is what the tools call into. *app.App satisfies it.
type Backend interface {
	Dispatch(ctx context.Context, instruction string) (*dispatch.Outcome, error)
	Check(instruction string) (*dispatch.Plan, error)
	Read(path string) (string, error)
	Catalogue() *catalogue.Catalogue
}

// Server wraps the MCP SDK server around a Backend.
type Server struct {
	mcpServer *mcpsdk.Server
	backend   Backend
}

// New creates an MCP server with all tools registered.
func New(backend Backend, version string) (*Server, error) {
	if backend == nil {
		return nil, errors.New("mcp: backend is required")
	}
	if version == "" {
		version = "dev"
	}

	s := &Server{backend: backend}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "taskgate",
			Version: version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all taskgate tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "run_task",
		Description: "Run a plain-English file task inside the sandbox. Rejected or failed tasks return an error with kind and detail.",
	}, s.handleRun)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "check_task",
		Description: "Report which operation a task would run, or why it would be rejected, without running it (dry-run).",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "read_file",
		Description: "Read a text file, typically an output written by a task.",
	}, s.handleRead)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_operations",
		Description: "List the supported task phrases in match priority order.",
	}, s.handleList)
}
