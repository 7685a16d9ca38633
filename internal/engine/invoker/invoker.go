// Package invoker runs the device compiler over compile units under bounded parallelism.
package invoker

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Compiled is a unit together with the artifact it produced.
type Compiled struct {
	Unit     domain.CompileUnit
	Artifact domain.Artifact
}

// Invoker dispatches compile units to the Runner.
type Invoker struct {
	runner ports.Runner
	tracer ports.Tracer
	logger ports.Logger
}

// New creates a new Invoker.
func New(runner ports.Runner, tracer ports.Tracer, logger ports.Logger) *Invoker {
	return &Invoker{runner: runner, tracer: tracer, logger: logger}
}

type slot struct {
	done     bool
	artifact domain.Artifact
	err      error
}

// Compile runs every unit with at most parallelism concurrent compiler processes.
// A non-positive parallelism means one per CPU.
//
// Once a unit fails no further unit is started. Units already running are left to
// finish, since they run under ctx rather than a group context. The returned slice
// holds the units that succeeded, in input order. When several units failed, the
// error of the one with the smallest source path is returned.
func (i *Invoker) Compile(
	ctx context.Context,
	units []domain.CompileUnit,
	builder *Builder,
	enc domain.ArchEncoding,
	parallelism int,
) ([]Compiled, error) {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	var (
		mu     sync.Mutex
		slots  = make([]slot, len(units))
		failed atomic.Bool
	)

	g := new(errgroup.Group)
	g.SetLimit(parallelism)

	for idx := range units {
		if failed.Load() {
			break
		}
		g.Go(func() error {
			if failed.Load() {
				return nil
			}
			artifact, err := i.compileOne(ctx, units[idx], builder, enc)
			if err != nil {
				failed.Store(true)
			}

			mu.Lock()
			slots[idx] = slot{done: true, artifact: artifact, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	compiled := make([]Compiled, 0, len(units))
	var firstErr error
	for idx, s := range slots {
		switch {
		case !s.done:
		case s.err != nil:
			// Units are sorted by source path, so the first failure is the smallest.
			if firstErr == nil {
				firstErr = s.err
			}
		default:
			compiled = append(compiled, Compiled{Unit: units[idx], Artifact: s.artifact})
		}
	}
	return compiled, firstErr
}

func (i *Invoker) compileOne(
	ctx context.Context,
	unit domain.CompileUnit,
	builder *Builder,
	enc domain.ArchEncoding,
) (domain.Artifact, error) {
	ctx, span := i.tracer.Start(ctx, filepath.Base(unit.Source.Path), ports.WithKind("compile"))
	defer span.End()
	span.SetAttribute("source", unit.Source.Path)
	span.SetAttribute("archs", []string(unit.Archs))

	invs := Invocations(unit, enc)
	outputs := make([]staged, 0, len(invs))
	defer func() {
		for _, o := range outputs {
			_ = os.Remove(o.tmp)
		}
	}()

	for _, inv := range invs {
		tmp, err := i.run(ctx, unit, builder, inv, span)
		if tmp != "" {
			outputs = append(outputs, staged{tmp: tmp, final: inv.Output})
		}
		if err != nil {
			span.RecordError(err)
			return domain.Artifact{}, err
		}
	}
	if err := commit(outputs); err != nil {
		span.RecordError(err)
		return domain.Artifact{}, err
	}

	return domain.Artifact{
		Source:   unit.Source.Path,
		Kind:     unit.Kind,
		Path:     unit.Output,
		Variants: unit.Variants,
	}, nil
}

// staged is a compiler output waiting in its temporary file.
type staged struct {
	tmp   string
	final string
}

// commit renames every staged output into place. If one rename fails, the
// outputs already moved are removed so no partial artifact remains.
func commit(outputs []staged) error {
	for n, o := range outputs {
		if err := os.Chmod(o.tmp, domain.FilePerm); err != nil && !errors.Is(err, fs.ErrNotExist) {
			rollback(outputs[:n])
			return domain.IOError(o.final, zerr.Wrap(err, "failed to set artifact permissions"))
		}
		if err := os.Rename(o.tmp, o.final); err != nil {
			rollback(outputs[:n])
			return domain.IOError(o.final, zerr.Wrap(err, "compiler produced no output"))
		}
	}
	return nil
}

func rollback(done []staged) {
	for _, o := range done {
		_ = os.Remove(o.final)
	}
}

// run compiles one invocation into a temporary file next to its final output
// and returns that path. The caller owns the file, including on error.
func (i *Invoker) run(
	ctx context.Context,
	unit domain.CompileUnit,
	builder *Builder,
	inv Invocation,
	span ports.Span,
) (string, error) {
	src := unit.Source.Path

	dir := filepath.Dir(inv.Output)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return "", domain.IOError(dir, zerr.Wrap(err, "failed to create artifact directory"))
	}
	tmp, err := tempPath(inv.Output)
	if err != nil {
		return "", domain.IOError(inv.Output, err)
	}

	cmd := builder.Command(unit, inv, tmp)
	i.logger.Debug(cmd.String())

	res, err := i.runner.Run(ctx, cmd, span)
	if err != nil {
		return tmp, &domain.BuildError{Kind: domain.ErrCompile, Path: src, Command: cmd.String(), Err: err}
	}
	if !res.Success() {
		return tmp, &domain.BuildError{
			Kind:        domain.ErrCompile,
			Path:        src,
			Command:     cmd.String(),
			Diagnostics: string(res.Output),
			Err:         zerr.With(domain.ErrToolExit, "exit_code", res.ExitCode),
		}
	}
	return tmp, nil
}

// tempPath picks an unused hidden path in the directory of final.
// The file itself is left for the compiler to create.
func tempPath(final string) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(final), "."+filepath.Base(final)+".*.tmp")
	if err != nil {
		return "", zerr.Wrap(err, "failed to create temporary output")
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		return "", zerr.Wrap(err, "failed to create temporary output")
	}
	return name, nil
}
