// Package render turns STL models into PNG previews with OpenSCAD.
package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/hpungsan/thingbot/internal/errors"
	"github.com/hpungsan/thingbot/internal/logging"
)

// Config controls the openscad invocation and preview post-processing.
type Config struct {
	OpenSCADPath string
	Width        int
	Height       int
	ColorScheme  string
	// MaxSize bounds the longest side of the final PNG; 0 disables resizing.
	MaxSize int
}

// Runner executes name with args in dir and returns its combined output.
type Runner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	return out.Bytes(), err
}

// OpenSCAD renders models by importing them into a generated .scad file.
type OpenSCAD struct {
	config Config
	run    Runner
	logger *zap.Logger
}

// NewOpenSCAD creates a renderer. A nil run uses ExecRunner.
func NewOpenSCAD(config Config, run Runner, logger *zap.Logger) *OpenSCAD {
	if config.OpenSCADPath == "" {
		config.OpenSCADPath = "openscad"
	}
	if config.Width <= 0 {
		config.Width = 1024
	}
	if config.Height <= 0 {
		config.Height = 768
	}
	if run == nil {
		run = ExecRunner
	}
	return &OpenSCAD{config: config, run: run, logger: logging.OrNop(logger)}
}

// GeneratePNG renders modelPath (a file inside dir) to a PNG in dir and returns its path.
// Every failure is reported as RENDER_FAILED.
func (o *OpenSCAD) GeneratePNG(ctx context.Context, dir, modelPath string) (string, error) {
	model := filepath.Base(modelPath)
	if filepath.Clean(filepath.Dir(modelPath)) != filepath.Clean(dir) {
		return "", errors.NewRenderFailed(model, "", fmt.Errorf("model %s is not inside %s", modelPath, dir))
	}

	stem := strings.TrimSuffix(model, filepath.Ext(model))
	scadPath := uniquePath(dir, stem, ".scad")
	pngPath := uniquePath(dir, stem, ".png")

	script := fmt.Sprintf("import(\"%s\");\n", scadEscape(model))
	if err := os.WriteFile(scadPath, []byte(script), 0o600); err != nil {
		return "", errors.NewRenderFailed(model, "", err)
	}

	args := []string{
		"-o", filepath.Base(pngPath),
		fmt.Sprintf("--imgsize=%d,%d", o.config.Width, o.config.Height),
		"--autocenter",
		"--viewall",
	}
	if o.config.ColorScheme != "" {
		args = append(args, "--colorscheme="+o.config.ColorScheme)
	}
	args = append(args, filepath.Base(scadPath))

	start := time.Now()
	out, err := o.run(ctx, dir, o.config.OpenSCADPath, args...)
	output := strings.TrimSpace(string(out))
	if err != nil {
		o.logger.Warn("openscad failed",
			zap.String("model", model),
			zap.Error(err),
			zap.String("output", output))
		return "", errors.NewRenderFailed(model, output, err)
	}

	if err := o.fit(pngPath); err != nil {
		return "", errors.NewRenderFailed(model, output, err)
	}

	o.logger.Debug("model rendered",
		zap.String("model", model),
		zap.String("png", pngPath),
		zap.Duration("duration", time.Since(start)))

	return pngPath, nil
}

// fit decodes the rendered PNG and shrinks it to MaxSize when it is larger.
// Decoding also catches openscad runs that exit 0 without usable output.
func (o *OpenSCAD) fit(pngPath string) error {
	img, err := imaging.Open(pngPath)
	if err != nil {
		return fmt.Errorf("read rendered image: %w", err)
	}

	limit := o.config.MaxSize
	b := img.Bounds()
	if limit <= 0 || (b.Dx() <= limit && b.Dy() <= limit) {
		return nil
	}

	dst := imaging.Fit(img, limit, limit, imaging.Lanczos)
	if err := imaging.Save(dst, pngPath); err != nil {
		return fmt.Errorf("write resized image: %w", err)
	}
	return nil
}

// uniquePath returns dir/stem+ext, or dir/stem-N+ext if that already exists.
func uniquePath(dir, stem, ext string) string {
	path := filepath.Join(dir, stem+ext)
	for i := 1; ; i++ {
		if _, err := os.Lstat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, i, ext))
	}
}

// scadEscape escapes a file name for use inside an OpenSCAD string literal.
func scadEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
