package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"gwi.com/mermaid-studio/internal/core"
	"gwi.com/mermaid-studio/internal/store"
)

func (s *Server) handleGetDiagram(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state := s.studio.State()
	res := s.studio.LastRender()

	var b strings.Builder
	fmt.Fprintf(&b, "Theme: %s\nRender: %s\n", state.Theme(), res.Status)
	if res.Status == core.RenderError {
		fmt.Fprintf(&b, "Error: %s\n", res.Error)
	}
	fmt.Fprintf(&b, "\n```mermaid\n%s\n```\n", state.Code())
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleSetDiagram(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: code"), nil
	}
	if err := s.studio.Edit(code); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save diagram: %v", err)), nil
	}
	return renderResult(s.studio.RenderNow(ctx), false), nil
}

func (s *Server) handleSetTheme(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("theme")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: theme"), nil
	}
	theme, err := store.ParseTheme(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.studio.SetTheme(theme); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save theme: %v", err)), nil
	}
	return mcp.NewToolResultText("Theme set to " + string(theme) + "."), nil
}

func (s *Server) handleRenderDiagram(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: code"), nil
	}
	theme := s.studio.State().Theme()
	if name := request.GetString("theme", ""); name != "" {
		if theme, err = store.ParseTheme(name); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	return renderResult(s.studio.Preview(ctx, code, theme), true), nil
}

// renderResult reports a render as a tool result. Syntax errors are tool
// errors so the caller can fix the source and retry.
func renderResult(res core.RenderResult, includeSVG bool) *mcp.CallToolResult {
	switch res.Status {
	case core.RenderError:
		return mcp.NewToolResultError("Syntax error: " + res.Error)
	case core.RenderPlaceholder:
		return mcp.NewToolResultText("The diagram is empty.")
	}
	if includeSVG {
		return mcp.NewToolResultText(res.SVG)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Rendered successfully (%d bytes of SVG).", len(res.SVG)))
}

func (s *Server) handleListExamples(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	groups := s.studio.Catalog().SearchGrouped(request.GetString("query", ""))
	if len(groups) == 0 {
		return mcp.NewToolResultText("No examples match."), nil
	}

	var b strings.Builder
	for _, g := range groups {
		fmt.Fprintf(&b, "## %s\n", g.Category)
		for _, ex := range g.Examples {
			fmt.Fprintf(&b, "- %s\n", ex.Name)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleLoadExample(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: name"), nil
	}
	ex, err := s.studio.LoadExample(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Loaded %q.\n\n```mermaid\n%s\n```\n", ex.Name, ex.Code)), nil
}

func (s *Server) handleGenerateDiagram(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := request.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: prompt"), nil
	}
	mode := core.AIMode(request.GetString("mode", string(core.AIModeGenerate)))

	code, err := s.studio.Generate(ctx, core.AIRequest{Mode: mode, Prompt: prompt})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("generation failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("```mermaid\n%s\n```\n", code)), nil
}

func (s *Server) handleSaveSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	item, err := s.studio.SaveSnapshot(request.GetString("label", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save snapshot: %v", err)), nil
	}
	if item == nil {
		return mcp.NewToolResultText("Nothing to save, the diagram is empty."), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Saved %q as %s.", item.Label, item.ID)), nil
}

func (s *Server) handleListHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items := s.studio.State().SearchHistory(request.GetString("query", ""))
	if len(items) == 0 {
		return mcp.NewToolResultText("No snapshots found."), nil
	}

	var b strings.Builder
	for _, item := range items {
		ts := time.UnixMilli(item.Timestamp).Format(time.DateTime)
		fmt.Fprintf(&b, "- %s  %s  (%s)\n", item.ID, item.Label, ts)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleLoadSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	item, err := s.studio.LoadHistory(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Restored %q.\n\n```mermaid\n%s\n```\n", item.Label, item.Code)), nil
}
