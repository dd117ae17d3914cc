// Package filestore handles attachment files referenced by store rows.
//
// Rows keep bare file names; the owning component supplies a base path.
// Resolution is plain concatenation after base normalization, matching
// how attachment paths are built by uploaders.
package filestore

import (
	"os"
	"strings"
)

// NormalizeBase ensures a non-empty base path ends with a single slash.
func NormalizeBase(base string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/"
}

// Resolve joins a normalized base path and a bare file name.
func Resolve(base, name string) string {
	return NormalizeBase(base) + name
}

// Local removes attachment files from the local filesystem.
type Local struct{}

// NewLocal creates a local attachment remover.
func NewLocal() *Local {
	return &Local{}
}

// Remove deletes the file at path. It reports false without error when
// the path does not exist or is not a regular file; only a failed
// removal of an existing file is an error.
func (l *Local) Remove(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}

	if err := os.Remove(path); err != nil {
		return false, err
	}
	return true, nil
}
