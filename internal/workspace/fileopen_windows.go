//go:build windows

package workspace

import (
	stderrors "errors"
	"io/fs"
	"os"

	"github.com/hpungsan/thingbot/internal/errors"
)

// openFileExclusive creates path for writing, failing if it already exists.
func openFileExclusive(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if stderrors.Is(err, fs.ErrExist) {
			return nil, err
		}
		return nil, errors.NewInternal(err)
	}
	return f, nil
}
