package domain

import (
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode"
)

// FileKind distinguishes compilable kernels from headers they include.
type FileKind int

const (
	// KindKernel is a device source compiled into one artifact.
	KindKernel FileKind = iota
	// KindHeader is an included file. It is never compiled on its own.
	KindHeader
)

// String returns the lower-case name of the kind.
func (k FileKind) String() string {
	switch k {
	case KindKernel:
		return "kernel"
	case KindHeader:
		return "header"
	default:
		return "unknown"
	}
}

// SourceFile is one discovered file. It is immutable within a build pass.
type SourceFile struct {
	// Path is the canonical absolute path.
	Path    string
	Hash    string
	Kind    FileKind
	ModTime time.Time
}

// Stem returns the file name without its extension.
func (f SourceFile) Stem() string {
	base := filepath.Base(f.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ModuleName derives the symbolic name used in the generation descriptor:
// the upper-cased stem with every non identifier character replaced by '_'.
func ModuleName(stem string) string {
	var b strings.Builder
	b.Grow(len(stem))
	for i, r := range stem {
		switch {
		case r == '_' || unicode.IsLetter(r) || (unicode.IsDigit(r) && i > 0):
			b.WriteRune(unicode.ToUpper(r))
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// SourceSet is the output of source discovery.
type SourceSet struct {
	// Kernels are sorted lexicographically by Path.
	Kernels []SourceFile
	// Headers are sorted lexicographically by Path.
	Headers []SourceFile
}

// HeaderDirs returns the sorted, deduplicated directories that contain headers.
func (s SourceSet) HeaderDirs() []string {
	seen := make(map[string]struct{}, len(s.Headers))
	dirs := make([]string, 0, len(s.Headers))
	for _, h := range s.Headers {
		dir := filepath.Dir(h.Path)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	slices.Sort(dirs)
	return dirs
}
