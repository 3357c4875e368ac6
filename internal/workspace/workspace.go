// Package workspace provides per-invocation scratch directories.
//
// A Workspace owns every model file and preview created while handling one
// event. Callers acquire it at the start of a handler and defer Release, which
// removes the directory on every exit path.
package workspace

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/thingbot/internal/errors"
)

// maxCollisions bounds the rename-on-collision search in Save.
const maxCollisions = 1000

// Workspace is a uniquely named temporary directory.
type Workspace struct {
	id       string
	dir      string
	released bool
}

// Acquire creates a fresh workspace under root (os.TempDir() when empty).
// The directory name is prefix-<ULID>-<random>, so concurrently active
// workspaces never share a path.
func Acquire(root, prefix string) (*Workspace, error) {
	if prefix == "" {
		prefix = "thingbot"
	}
	id := ulid.Make().String()

	dir, err := os.MkdirTemp(root, fmt.Sprintf("%s-%s-*", SanitizeForFilename(prefix), id))
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("create workspace: %w", err))
	}

	return &Workspace{id: id, dir: dir}, nil
}

// ID returns the invocation ID embedded in the directory name.
func (w *Workspace) ID() string { return w.id }

// Dir returns the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// Release removes the workspace and everything in it. Safe to call more than once.
func (w *Workspace) Release() error {
	if w.released {
		return nil
	}
	w.released = true
	if err := os.RemoveAll(w.dir); err != nil {
		return errors.NewInternal(fmt.Errorf("remove workspace: %w", err))
	}
	return nil
}

// Save creates a new file named after the base of name and fills it with write.
// An existing file is never overwritten: "part.stl" becomes "part-1.stl",
// "part-2.stl" and so on. A failed write removes the partial file.
// Returns the path of the created file.
func (w *Workspace) Save(name string, write func(io.Writer) error) (string, error) {
	if w.released {
		return "", errors.NewInternal(fmt.Errorf("workspace %s already released", w.id))
	}

	base := filepath.Base(name)
	ext := filepath.Ext(base)
	stem := SanitizeForFilename(strings.Trim(strings.TrimSuffix(base, ext), "."))
	if len(ext) > 1 {
		// openscad picks its importer from the extension, so it is kept intact.
		ext = "." + SanitizeForFilename(ext[1:])
	} else {
		ext = ""
	}

	for i := 0; i < maxCollisions; i++ {
		candidate := stem + ext
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		path := filepath.Join(w.dir, candidate)

		f, err := openFileExclusive(path)
		if err != nil {
			if stderrors.Is(err, fs.ErrExist) {
				continue
			}
			return "", err
		}

		if err := write(f); err != nil {
			f.Close()
			os.Remove(path)
			return "", err
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", errors.NewInternal(fmt.Errorf("close %s: %w", candidate, err))
		}
		return path, nil
	}

	return "", errors.NewInternal(fmt.Errorf("too many files named %q in workspace", base))
}

// SanitizeForFilename sanitizes a string for safe use in a filename.
// Removes/replaces characters that could be used for path traversal or injection.
func SanitizeForFilename(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")

	// Replace ".." sequences (could be embedded)
	s = strings.ReplaceAll(s, "..", "-")

	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	s = result.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}

	s = strings.Trim(s, "-")

	if s == "" {
		s = "unnamed"
	}

	return s
}
