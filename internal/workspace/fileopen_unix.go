//go:build !windows

package workspace

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/hpungsan/thingbot/internal/errors"
)

// openFileExclusive creates path for writing, failing if it already exists.
// O_NOFOLLOW rejects a symlink planted at the final component; O_CLOEXEC keeps
// the descriptor out of the openscad child process.
func openFileExclusive(path string) (*os.File, error) {
	fd, err := syscall.Open(path, syscall.O_WRONLY|syscall.O_CREAT|syscall.O_EXCL|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, 0o600)
	if err != nil {
		if stderrors.Is(err, syscall.EEXIST) {
			return nil, &os.PathError{Op: "open", Path: path, Err: err}
		}
		if stderrors.Is(err, syscall.ELOOP) {
			return nil, errors.NewInvalidRequest("cannot write to symlink")
		}
		return nil, errors.NewInternal(&os.PathError{Op: "open", Path: path, Err: err})
	}
	return os.NewFile(uintptr(fd), path), nil
}
