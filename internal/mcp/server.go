package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"thing_preview": {
		def:     thingPreviewToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleThingPreview },
	},
	"stl_preview": {
		def:     stlPreviewToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSTLPreview },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with the preview tools registered.
// Tools listed in disabledTools are excluded from registration.
func NewServer(h *Handlers, disabledTools []string, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"thingbot",
		version,
		server.WithToolCapabilities(true),
	)

	disabled := make(map[string]bool, len(disabledTools))
	for _, name := range disabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run serves the MCP server over stdio.
func Run(h *Handlers, disabledTools []string, version string) error {
	return server.ServeStdio(NewServer(h, disabledTools, version))
}
