package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/linuxmatters/lapse/internal/errors"
)

// ErrNoFreeName is returned when every candidate default name is taken.
var ErrNoFreeName = errors.New("no free output file name")

// DefaultOutputPath returns timelapse.mp4 in dir, or the first free
// timelapse_N.mp4 when it already exists. Existing files are never chosen.
func DefaultOutputPath(dir string) (string, error) {
	return NextFreeName(dir, DefaultOutputBase, DefaultOutputExt)
}

// NextFreeName searches base+ext, base_1+ext, ... base_MaxNameAttempts+ext
// for a path that does not exist yet.
func NextFreeName(dir, base, ext string) (string, error) {
	candidate := filepath.Join(dir, base+ext)
	if !pathExists(candidate) {
		return candidate, nil
	}

	for i := 1; i <= MaxNameAttempts; i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
		if !pathExists(candidate) {
			return candidate, nil
		}
	}

	return "", apperrors.Configuration(fmt.Errorf("%w: %s%s and %s_1%s to %s_%d%s all exist",
		ErrNoFreeName, base, ext, base, ext, base, MaxNameAttempts, ext))
}

// pathExists treats anything Lstat can see, including dangling symlinks and
// unreadable files, as taken.
func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !os.IsNotExist(err)
}
