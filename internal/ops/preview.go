package ops

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpungsan/thingbot/internal/errors"
	"github.com/hpungsan/thingbot/internal/metrics"
	"github.com/hpungsan/thingbot/internal/workspace"
)

// ModelFiletype is the Slack filetype assigned to STL uploads.
const ModelFiletype = "binary"

// ModelExtension is the model-file extension, compared case-insensitively.
const ModelExtension = ".stl"

// Attachment is a file shared in a chat message.
type Attachment struct {
	Name        string
	Filetype    string
	DownloadURL string
}

// IsModel reports whether a is an STL upload.
func (a Attachment) IsModel() bool {
	return a.Filetype == ModelFiletype && strings.HasSuffix(strings.ToLower(a.Name), ModelExtension)
}

// SelectModels returns the attachments that are STL uploads, in order.
func SelectModels(attachments []Attachment) []Attachment {
	var models []Attachment
	for _, a := range attachments {
		if a.IsModel() {
			models = append(models, a)
		}
	}
	return models
}

// FetchThing downloads every STL of thingID into ws and returns the local paths.
// An unknown thing yields INVALID_THING before anything is written, so no
// partial result is ever returned alongside an error.
func FetchThing(ctx context.Context, src ModelSource, ws *workspace.Workspace, thingID string) ([]string, error) {
	files, err := src.GetSTLs(ctx, thingID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	return src.DownloadSTLs(ctx, ws, files)
}

// SaveAttachments downloads each attachment into ws under its base name.
// Name collisions are resolved by the workspace (part.stl, part-1.stl, ...).
func SaveAttachments(ctx context.Context, dl FileDownloader, ws *workspace.Workspace, attachments []Attachment) ([]string, error) {
	paths := make([]string, 0, len(attachments))
	for _, a := range attachments {
		if a.DownloadURL == "" {
			return nil, errors.NewDownloadFailed(a.Name, fmt.Errorf("attachment has no download url"))
		}
		path, err := ws.Save(a.Name, func(w io.Writer) error {
			return dl.DownloadFile(ctx, a.DownloadURL, w)
		})
		if err != nil {
			return nil, errors.NewDownloadFailed(a.Name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ImportFile copies a local model into ws so it can be rendered there.
func ImportFile(ws *workspace.Workspace, path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("cannot open model: %v", err))
	}
	defer src.Close()

	return ws.Save(filepath.Base(path), func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	})
}

// RenderModels renders each model in ws, one at a time, preserving order.
// The first failure stops the run.
func RenderModels(ctx context.Context, r Renderer, ws *workspace.Workspace, models []string) ([]Preview, error) {
	previews := make([]Preview, 0, len(models))
	for _, model := range models {
		image, err := r.GeneratePNG(ctx, ws.Dir(), model)
		if err != nil {
			if !errors.Is(err, errors.ErrRenderFailed) {
				err = errors.NewRenderFailed(filepath.Base(model), "", err)
			}
			return nil, err
		}
		previews = append(previews, Preview{Model: model, Image: image})
	}
	return previews, nil
}

// PreviewThing fetches and renders every STL of thingID.
// An empty result with a nil error means the thing has no STL files.
func PreviewThing(ctx context.Context, src ModelSource, r Renderer, ws *workspace.Workspace, thingID string) ([]Preview, error) {
	models, err := FetchThing(ctx, src, ws, thingID)
	if err != nil {
		return nil, err
	}
	return RenderModels(ctx, r, ws, models)
}

// PreviewAttachments downloads and renders the STL attachments.
// Non-model attachments are skipped.
func PreviewAttachments(ctx context.Context, dl FileDownloader, r Renderer, ws *workspace.Workspace, attachments []Attachment) ([]Preview, error) {
	models, err := SaveAttachments(ctx, dl, ws, SelectModels(attachments))
	if err != nil {
		return nil, err
	}
	return RenderModels(ctx, r, ws, models)
}

// InstrumentRenderer wraps r so every render is recorded in m.
func InstrumentRenderer(r Renderer, m *metrics.Metrics) Renderer {
	if m == nil {
		return r
	}
	return &instrumentedRenderer{next: r, metrics: m}
}

type instrumentedRenderer struct {
	next    Renderer
	metrics *metrics.Metrics
}

func (i *instrumentedRenderer) GeneratePNG(ctx context.Context, dir, modelPath string) (string, error) {
	start := time.Now()
	image, err := i.next.GeneratePNG(ctx, dir, modelPath)
	i.metrics.ObserveRender(time.Since(start), err)
	return image, err
}
