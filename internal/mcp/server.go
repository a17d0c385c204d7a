package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"gwi.com/mermaid-studio/internal/core"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server exposes the studio to MCP clients as a set of tools.
type Server struct {
	studio *core.StudioService
	mcp    *server.MCPServer
}

func NewServer(studio *core.StudioService) *Server {
	s := &Server{studio: studio}

	s.mcp = server.NewMCPServer(
		"mermaid-studio",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(getDiagramTool, s.handleGetDiagram)
	s.mcp.AddTool(setDiagramTool, s.handleSetDiagram)
	s.mcp.AddTool(setThemeTool, s.handleSetTheme)
	s.mcp.AddTool(renderDiagramTool, s.handleRenderDiagram)
	s.mcp.AddTool(listExamplesTool, s.handleListExamples)
	s.mcp.AddTool(loadExampleTool, s.handleLoadExample)
	s.mcp.AddTool(generateDiagramTool, s.handleGenerateDiagram)
	s.mcp.AddTool(saveSnapshotTool, s.handleSaveSnapshot)
	s.mcp.AddTool(listHistoryTool, s.handleListHistory)
	s.mcp.AddTool(loadSnapshotTool, s.handleLoadSnapshot)
}

// Serve starts the MCP server on stdio. Stdout carries protocol messages, so
// logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
