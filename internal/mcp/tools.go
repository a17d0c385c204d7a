package mcp

import "github.com/mark3labs/mcp-go/mcp"

var themeNames = []string{"default", "neutral", "dark", "forest", "cyberpunk", "ocean", "sunset", "minimal"}

var getDiagramTool = mcp.NewTool("get_diagram",
	mcp.WithDescription("Get the Mermaid source and theme currently open in the studio, plus the last render status."),
)

var setDiagramTool = mcp.NewTool("set_diagram",
	mcp.WithDescription("Replace the studio's Mermaid source and render it. Returns the render status or the syntax error."),
	mcp.WithString("code",
		mcp.Required(),
		mcp.Description("Complete Mermaid diagram source"),
	),
)

var setThemeTool = mcp.NewTool("set_theme",
	mcp.WithDescription("Change the theme used to render the diagram."),
	mcp.WithString("theme",
		mcp.Required(),
		mcp.Description("Theme name"),
		mcp.Enum(themeNames...),
	),
)

var renderDiagramTool = mcp.NewTool("render_diagram",
	mcp.WithDescription("Render Mermaid source to SVG without changing the studio. Useful to validate syntax."),
	mcp.WithString("code",
		mcp.Required(),
		mcp.Description("Mermaid diagram source"),
	),
	mcp.WithString("theme",
		mcp.Description("Theme name (defaults to the studio's theme)"),
		mcp.Enum(themeNames...),
	),
)

var listExamplesTool = mcp.NewTool("list_examples",
	mcp.WithDescription("List the built-in example diagrams grouped by category."),
	mcp.WithString("query",
		mcp.Description("Case-insensitive filter over name, category and code"),
	),
)

var loadExampleTool = mcp.NewTool("load_example",
	mcp.WithDescription("Open a built-in example in the studio, replacing the current source."),
	mcp.WithString("name",
		mcp.Required(),
		mcp.Description("Example name as shown by list_examples"),
	),
)

var generateDiagramTool = mcp.NewTool("generate_diagram",
	mcp.WithDescription("Ask the configured Gemini model to write a new diagram, or to refine the current one."),
	mcp.WithString("prompt",
		mcp.Required(),
		mcp.Description("What to draw, or the changes to make in refine mode"),
	),
	mcp.WithString("mode",
		mcp.Description("generate (default) or refine"),
		mcp.Enum("generate", "refine"),
	),
)

var saveSnapshotTool = mcp.NewTool("save_snapshot",
	mcp.WithDescription("Save the current source to the history."),
	mcp.WithString("label",
		mcp.Description("Snapshot label (defaults to a timestamp)"),
	),
)

var listHistoryTool = mcp.NewTool("list_history",
	mcp.WithDescription("List saved snapshots, newest first."),
	mcp.WithString("query",
		mcp.Description("Case-insensitive filter over label and code"),
	),
)

var loadSnapshotTool = mcp.NewTool("load_snapshot",
	mcp.WithDescription("Restore a saved snapshot into the studio."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Snapshot id as shown by list_history"),
	),
)
