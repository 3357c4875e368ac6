package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/thingbot/internal/errors"
)

// ValidateModelPath checks a local model path given on the command line or to an MCP tool:
// 1. Non-empty, no directory traversal (..)
// 2. .stl extension (any case)
// 3. Exists, is a regular file and not a symlink
func ValidateModelPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.NewInvalidRequest("path is required")
	}

	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if !strings.EqualFold(filepath.Ext(cleaned), ModelExtension) {
		return errors.NewInvalidRequest("path must have .stl extension")
	}

	info, err := os.Lstat(cleaned)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewInvalidRequest(fmt.Sprintf("file not found: %s", path))
		}
		return errors.NewInternal(err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	if !info.Mode().IsRegular() {
		return errors.NewInvalidRequest("path must be a regular file")
	}

	return nil
}

// ValidateOutputDir checks that dir exists and is a directory.
func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.NewInvalidRequest("output directory is required")
	}
	if containsTraversal(dir) {
		return errors.NewInvalidRequest("output directory must not contain directory traversal (..)")
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewInvalidRequest(fmt.Sprintf("output directory not found: %s", dir))
		}
		return errors.NewInternal(err)
	}
	if !info.IsDir() {
		return errors.NewInvalidRequest(fmt.Sprintf("not a directory: %s", dir))
	}
	return nil
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	// Also check for forward slashes on all platforms (e.g., user input)
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}
