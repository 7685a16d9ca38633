package fs

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Hasher = (*Hasher)(nil)

// Hasher computes content hashes with XXHash.
type Hasher struct{}

// NewHasher creates a new Hasher.
func NewHasher() *Hasher {
	return &Hasher{}
}

// ComputeFileHash returns the hex XXHash of a file's content.
func (h *Hasher) ComputeFileHash(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to open file"), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	digest := xxhash.New()
	if _, err := io.Copy(digest, f); err != nil {
		return "", errors.Join(domain.ErrFileHashFailed, zerr.With(err, "path", path))
	}
	return fmt.Sprintf("%016x", digest.Sum64()), nil
}

// ComputeStringsHash returns the hex XXHash of parts in order.
// Each part is NUL terminated so ["ab", "c"] and ["a", "bc"] differ.
func (h *Hasher) ComputeStringsHash(parts []string) string {
	digest := xxhash.New()
	for _, p := range parts {
		_, _ = digest.WriteString(p)
		_, _ = digest.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", digest.Sum64())
}
