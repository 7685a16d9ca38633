package fs

import (
	"errors"
	"io/fs"
	"os"

	"go.trai.ch/kbuild/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Verifier = (*Verifier)(nil)

// Verifier checks that previously produced artifacts are still on disk.
type Verifier struct{}

// NewVerifier creates a new Verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Exists reports whether every path exists as a regular file.
func (v *Verifier) Exists(paths []string) (bool, error) {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return false, nil
			}
			return false, zerr.With(zerr.Wrap(err, "failed to stat artifact"), "path", path)
		}
		if !info.Mode().IsRegular() {
			return false, nil
		}
	}
	return true, nil
}
