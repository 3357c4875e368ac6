package ops

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hpungsan/thingbot/internal/errors"
)

// ExportPreviews copies preview images out of their workspace into outDir
// before the workspace is released. Existing files in outDir are not
// overwritten; a numeric suffix is added instead.
// Returns the exported paths in preview order.
func ExportPreviews(previews []Preview, outDir string) ([]string, error) {
	if err := ValidateOutputDir(outDir); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(previews))
	for _, p := range previews {
		dst, err := exportOne(p.Image, outDir)
		if err != nil {
			return nil, err
		}
		paths = append(paths, dst)
	}
	return paths, nil
}

func exportOne(src, outDir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("open preview: %w", err))
	}
	defer in.Close()

	base := filepath.Base(src)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]

	for i := 0; i < 1000; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		dst := filepath.Join(outDir, name)

		out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return "", errors.NewInternal(fmt.Errorf("create %s: %w", dst, err))
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			os.Remove(dst)
			return "", errors.NewInternal(fmt.Errorf("write %s: %w", dst, err))
		}
		if err := out.Close(); err != nil {
			return "", errors.NewInternal(fmt.Errorf("close %s: %w", dst, err))
		}
		return dst, nil
	}

	return "", errors.NewInternal(fmt.Errorf("too many files named %q in %s", base, outDir))
}
