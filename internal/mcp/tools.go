package mcp

import "github.com/mark3labs/mcp-go/mcp"

var thingPreviewToolDef = mcp.NewTool("thing_preview",
	mcp.WithDescription("Render a PNG preview of every STL file attached to a Thingiverse thing."),
	mcp.WithString("thing_id",
		mcp.Required(),
		mcp.Description("Thingiverse thing identifier, e.g. 3495390"),
	),
)

var stlPreviewToolDef = mcp.NewTool("stl_preview",
	mcp.WithDescription("Render a PNG preview of a local STL file."),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Path to a .stl file on this machine"),
	),
)
