// Package aggregator turns the per-source artifacts of a pass into the final output:
// a generation descriptor in assembly mode or a static archive in library mode.
package aggregator

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/core/ports"
	"go.trai.ch/zerr"
)

// Input is what one pass hands to the aggregator.
type Input struct {
	Mode domain.OutputMode
	// Output is the resolved descriptor or archive path.
	Output string
	// Artifacts are every artifact of the pass, ordered by source path.
	Artifacts []domain.Artifact
	// Compiled is the number of units recompiled in this pass.
	Compiled int
	// Stale are files the previous pass produced that no current artifact owns.
	Stale []string
	// Archiver overrides the tool that builds the archive.
	Archiver string
	// Compiler is used as the archiver when none is configured.
	Compiler string
	// Previous is the archive recorded by the last library-mode pass.
	Previous *domain.ArchiveRecord
}

// Output describes what the aggregator produced.
type Output struct {
	Descriptor string
	Archive    string
	// Record is the archive state to store for the next pass. Nil in assembly mode.
	Record *domain.ArchiveRecord
	// Changed is false when no file was written or removed.
	Changed bool
}

// Aggregator assembles artifacts according to the output mode.
type Aggregator struct {
	runner   ports.Runner
	tracer   ports.Tracer
	verifier ports.Verifier
	logger   ports.Logger
}

// New creates a new Aggregator.
func New(runner ports.Runner, tracer ports.Tracer, verifier ports.Verifier, logger ports.Logger) *Aggregator {
	return &Aggregator{runner: runner, tracer: tracer, verifier: verifier, logger: logger}
}

// Aggregate removes orphaned artifacts and then writes the mode's output.
func (a *Aggregator) Aggregate(ctx context.Context, in Input) (Output, error) {
	removed, err := a.removeOrphans(in.Stale)
	if err != nil {
		return Output{}, err
	}

	var out Output
	switch mode := in.Mode.(type) {
	case domain.AssemblyMode:
		out, err = a.assemble(in)
	case domain.LibraryMode:
		out, err = a.archive(ctx, in)
	default:
		err = domain.ConfigError(zerr.With(domain.ErrUnknownMode, "mode", mode))
	}
	if err != nil {
		return Output{}, err
	}
	out.Changed = out.Changed || removed > 0
	return out, nil
}

func (a *Aggregator) removeOrphans(paths []string) (int, error) {
	removed := 0
	for _, path := range paths {
		err := os.Remove(path)
		switch {
		case err == nil:
			removed++
			a.logger.Debug("removed orphaned artifact " + path)
		case errors.Is(err, fs.ErrNotExist):
		default:
			return removed, domain.IOError(path, zerr.Wrap(err, "failed to remove orphaned artifact"))
		}
	}
	return removed, nil
}

// writeFileAtomic writes data through a temporary file in the target directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create directory")
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return zerr.Wrap(err, "failed to create temporary file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return zerr.Wrap(err, "failed to write file")
	}
	if err := tmp.Close(); err != nil {
		return zerr.Wrap(err, "failed to write file")
	}
	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		return zerr.Wrap(err, "failed to set file permissions")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return zerr.Wrap(err, "failed to replace file")
	}
	return nil
}
