package fs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

var _ ports.SourceCollector = (*Collector)(nil)

// Collector discovers kernels and headers under a set of roots.
type Collector struct {
	walker *Walker
	hasher ports.Hasher
}

// NewCollector creates a new Collector.
func NewCollector(walker *Walker, hasher ports.Hasher) *Collector {
	return &Collector{walker: walker, hasher: hasher}
}

// Collect walks every root, classifies files by extension and hashes them.
// Paths are canonical and both lists are sorted lexicographically.
// Files reachable from more than one root are reported once.
func (c *Collector) Collect(roots, kernelExts, headerExts []string) (domain.SourceSet, error) {
	seen := make(map[string]struct{})
	var kernels, headers []domain.SourceFile

	for _, root := range roots {
		canonical, err := canonicalRoot(root)
		if err != nil {
			return domain.SourceSet{}, err
		}

		for path, walkErr := range c.walker.WalkFiles(canonical, nil) {
			if walkErr != nil {
				return domain.SourceSet{}, domain.NewBuildError(
					domain.ErrSourceDiscovery, canonical, zerr.Wrap(walkErr, "walk failed"),
				)
			}
			if _, dup := seen[path]; dup {
				continue
			}

			var kind domain.FileKind
			switch ext := filepath.Ext(path); {
			case slices.Contains(kernelExts, ext):
				kind = domain.KindKernel
			case slices.Contains(headerExts, ext):
				kind = domain.KindHeader
			default:
				continue
			}
			seen[path] = struct{}{}

			file := domain.SourceFile{Path: path, Kind: kind}
			if info, err := os.Stat(path); err == nil {
				file.ModTime = info.ModTime()
			}
			if kind == domain.KindKernel {
				kernels = append(kernels, file)
			} else {
				headers = append(headers, file)
			}
		}
	}

	if err := c.hashAll(kernels, headers); err != nil {
		return domain.SourceSet{}, err
	}

	byPath := func(a, b domain.SourceFile) int { return strings.Compare(a.Path, b.Path) }
	slices.SortFunc(kernels, byPath)
	slices.SortFunc(headers, byPath)

	return domain.SourceSet{Kernels: kernels, Headers: headers}, nil
}

func (c *Collector) hashAll(groups ...[]domain.SourceFile) error {
	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())
	for _, files := range groups {
		for i := range files {
			g.Go(func() error {
				hash, err := c.hasher.ComputeFileHash(files[i].Path)
				if err != nil {
					return domain.IOError(files[i].Path, err)
				}
				files[i].Hash = hash
				return nil
			})
		}
	}
	return g.Wait()
}

// canonicalRoot resolves root to an absolute, symlink-free directory path.
func canonicalRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", domain.NewBuildError(domain.ErrSourceDiscovery, root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", domain.NewBuildError(domain.ErrSourceDiscovery, abs, domain.ErrRootNotFound)
		}
		return "", domain.NewBuildError(domain.ErrSourceDiscovery, abs, zerr.Wrap(err, "stat failed"))
	}
	if !info.IsDir() {
		return "", domain.NewBuildError(domain.ErrSourceDiscovery, abs, domain.ErrRootNotDir)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", domain.NewBuildError(domain.ErrSourceDiscovery, abs, zerr.Wrap(err, "resolve failed"))
	}
	return resolved, nil
}
