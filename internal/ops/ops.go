// Package ops holds the preview pipeline shared by the Slack bot, the CLI and
// the MCP server: gather models into a workspace, render them, hand back the
// previews. Callers own the workspace and its release.
package ops

import (
	"context"
	"io"

	"github.com/hpungsan/thingbot/internal/thingiverse"
)

// ModelSource lists and downloads a thing's STL files.
// *thingiverse.Client implements it.
type ModelSource interface {
	GetSTLs(ctx context.Context, thingID string) ([]thingiverse.File, error)
	DownloadSTLs(ctx context.Context, dst thingiverse.Saver, files []thingiverse.File) ([]string, error)
}

// Renderer converts one model file into a preview image in the same directory.
// *render.OpenSCAD implements it.
type Renderer interface {
	GeneratePNG(ctx context.Context, dir, modelPath string) (string, error)
}

// FileDownloader fetches a chat attachment with the bot's own credentials.
type FileDownloader interface {
	DownloadFile(ctx context.Context, url string, w io.Writer) error
}

// Preview pairs a model file with the image rendered from it.
type Preview struct {
	Model string `json:"model"`
	Image string `json:"image"`
}
