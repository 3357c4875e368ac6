package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hpungsan/thingbot/internal/errors"
	"github.com/hpungsan/thingbot/internal/logging"
	"github.com/hpungsan/thingbot/internal/ops"
	"github.com/hpungsan/thingbot/internal/workspace"
)

const (
	workspacePrefix = "thingbot-mcp"
	imageMIMEType   = "image/png"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	source   ops.ModelSource
	renderer ops.Renderer
	root     string
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance. Workspaces are created under
// root (os.TempDir() when empty).
func NewHandlers(source ops.ModelSource, renderer ops.Renderer, root string, logger *zap.Logger) *Handlers {
	return &Handlers{source: source, renderer: renderer, root: root, logger: logging.OrNop(logger)}
}

// ThingPreviewRequest represents the arguments for thing_preview.
type ThingPreviewRequest struct {
	ThingID string `json:"thing_id"`
}

// STLPreviewRequest represents the arguments for stl_preview.
type STLPreviewRequest struct {
	Path string `json:"path"`
}

// previewSummary is the text part of a preview result. Images follow it in
// the same order as Models.
type previewSummary struct {
	ThingID string   `json:"thing_id,omitempty"`
	Models  []string `json:"models"`
	Message string   `json:"message,omitempty"`
}

// HandleThingPreview handles the thing_preview tool call.
func (h *Handlers) HandleThingPreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ThingPreviewRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	thingID := strings.TrimSpace(input.ThingID)
	if thingID == "" {
		return errorResult(errors.NewInvalidRequest("thing_id is required")), nil
	}

	ws, err := workspace.Acquire(h.root, workspacePrefix)
	if err != nil {
		return errorResult(err), nil
	}
	defer h.release(ws)

	previews, err := ops.PreviewThing(ctx, h.source, h.renderer, ws, thingID)
	if err != nil {
		h.logger.Warn("thing_preview failed", zap.String("thing_id", thingID), zap.Error(err))
		return errorResult(err), nil
	}

	summary := previewSummary{ThingID: thingID}
	if len(previews) == 0 {
		summary.Message = "there were no stls found on this thing"
	}
	return imageResult(summary, previews)
}

// HandleSTLPreview handles the stl_preview tool call.
func (h *Handlers) HandleSTLPreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[STLPreviewRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := ops.ValidateModelPath(input.Path); err != nil {
		return errorResult(err), nil
	}

	ws, err := workspace.Acquire(h.root, workspacePrefix)
	if err != nil {
		return errorResult(err), nil
	}
	defer h.release(ws)

	model, err := ops.ImportFile(ws, input.Path)
	if err != nil {
		return errorResult(err), nil
	}
	previews, err := ops.RenderModels(ctx, h.renderer, ws, []string{model})
	if err != nil {
		h.logger.Warn("stl_preview failed", zap.String("path", input.Path), zap.Error(err))
		return errorResult(err), nil
	}

	return imageResult(previewSummary{}, previews)
}

func (h *Handlers) release(ws *workspace.Workspace) {
	if err := ws.Release(); err != nil {
		h.logger.Warn("release workspace", zap.String("dir", ws.Dir()), zap.Error(err))
	}
}

// imageResult reads the previews while the workspace still exists and
// returns them as base64 PNG content after a JSON summary.
func imageResult(summary previewSummary, previews []ops.Preview) (*mcp.CallToolResult, error) {
	summary.Models = make([]string, 0, len(previews))
	images := make([]mcp.Content, 0, len(previews))
	for _, p := range previews {
		data, err := os.ReadFile(p.Image)
		if err != nil {
			return errorResult(errors.NewInternal(err)), nil
		}
		summary.Models = append(summary.Models, filepath.Base(p.Model))
		images = append(images, mcp.NewImageContent(base64.StdEncoding.EncodeToString(data), imageMIMEType))
	}

	text, err := json.Marshal(summary)
	if err != nil {
		return errorResult(errors.NewInternal(err)), nil
	}
	content := append([]mcp.Content{mcp.NewTextContent(string(text))}, images...)
	return &mcp.CallToolResult{Content: content}, nil
}

// errorResult creates an error result from an error.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var botErr *errors.BotError
	if stderrors.As(err, &botErr) {
		errorObj := map[string]any{
			"code":    botErr.Code,
			"message": botErr.Message,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or openscad output
		if botErr.Code != errors.ErrInternal {
			if details := publicDetails(botErr.Details); len(details) > 0 {
				errorObj["details"] = details
			}
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// publicDetails drops detail keys that may carry local paths or tool output.
func publicDetails(details map[string]any) map[string]any {
	out := make(map[string]any, len(details))
	for k, v := range details {
		if k == "output" {
			continue
		}
		out[k] = v
	}
	return out
}
