package aggregator

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/core/ports"
	"go.trai.ch/zerr"
)

func (a *Aggregator) archive(ctx context.Context, in Input) (Output, error) {
	members := make([]string, 0, len(in.Artifacts))
	for _, art := range in.Artifacts {
		members = append(members, art.Path)
	}
	rec := &domain.ArchiveRecord{Path: in.Output, Members: members}
	out := Output{Archive: in.Output, Record: rec}

	upToDate, err := a.archiveUpToDate(in, members)
	if err != nil {
		return Output{}, err
	}
	if upToDate {
		a.logger.Debug("archive is up to date " + in.Output)
		return out, nil
	}

	ctx, span := a.tracer.Start(ctx, filepath.Base(in.Output), ports.WithKind("archive"))
	defer span.End()
	span.SetAttribute("members", len(members))

	if err := a.runArchiver(ctx, in, members, span); err != nil {
		span.RecordError(err)
		return Output{}, err
	}
	out.Changed = true
	return out, nil
}

func (a *Aggregator) archiveUpToDate(in Input, members []string) (bool, error) {
	prev := in.Previous
	if in.Compiled > 0 || prev == nil || prev.Path != in.Output || !slices.Equal(prev.Members, members) {
		return false, nil
	}
	ok, err := a.verifier.Exists([]string{in.Output})
	if err != nil {
		return false, domain.IOError(in.Output, err)
	}
	return ok, nil
}

func (a *Aggregator) runArchiver(ctx context.Context, in Input, members []string, span ports.Span) error {
	dir := filepath.Dir(in.Output)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return domain.IOError(dir, zerr.Wrap(err, "failed to create archive directory"))
	}

	// The archiver must create the file itself; an empty pre-existing file is not an archive.
	f, err := os.CreateTemp(dir, "."+filepath.Base(in.Output)+".*.tmp")
	if err != nil {
		return domain.IOError(in.Output, zerr.Wrap(err, "failed to create temporary archive"))
	}
	tmp := f.Name()
	_ = f.Close()
	_ = os.Remove(tmp)
	defer func() { _ = os.Remove(tmp) }()

	cmd := ArchiveCommand(in.Archiver, in.Compiler, tmp, members)
	a.logger.Debug(cmd.String())

	res, err := a.runner.Run(ctx, cmd, span)
	if err != nil {
		return &domain.BuildError{Kind: domain.ErrArchive, Path: in.Output, Command: cmd.String(), Err: err}
	}
	if !res.Success() {
		return &domain.BuildError{
			Kind:        domain.ErrArchive,
			Path:        in.Output,
			Command:     cmd.String(),
			Diagnostics: string(res.Output),
			Err:         zerr.With(domain.ErrToolExit, "exit_code", res.ExitCode),
		}
	}

	if err := os.Chmod(tmp, domain.FilePerm); err != nil {
		return domain.IOError(in.Output, zerr.Wrap(err, "archiver produced no output"))
	}
	if err := os.Rename(tmp, in.Output); err != nil {
		return domain.IOError(in.Output, zerr.Wrap(err, "failed to replace archive"))
	}
	return nil
}

// ArchiveCommand renders the archiver invocation writing members to out.
// The archiver defaults to the compiler. ar and its prefixed or llvm variants get
// "rcs", anything else is driven like nvcc with --lib.
func ArchiveCommand(archiver, compiler, out string, members []string) domain.Command {
	if archiver == "" {
		archiver = compiler
	}
	var args []string
	if isAr(archiver) {
		args = append([]string{"rcs", out}, members...)
	} else {
		args = append([]string{"--lib", "-o", out}, members...)
	}
	return domain.Command{Program: archiver, Args: args}
}

func isAr(program string) bool {
	base := strings.TrimSuffix(filepath.Base(program), ".exe")
	return base == "ar" || base == "llvm-ar" || strings.HasSuffix(base, "-ar")
}
