package invoker_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kbuild/internal/adapters/telemetry"
	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/core/ports/mocks"
	"go.trai.ch/kbuild/internal/engine/invoker"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
)

func outputArg(t *testing.T, args []string) string {
	t.Helper()
	i := slices.Index(args, "-o")
	require.GreaterOrEqual(t, i, 0)
	return args[i+1]
}

// writeOutput fakes a successful compiler run.
func writeOutput(t *testing.T) func(context.Context, domain.Command, io.Writer) (domain.ProcessResult, error) {
	return func(_ context.Context, cmd domain.Command, _ io.Writer) (domain.ProcessResult, error) {
		out := outputArg(t, cmd.Args)
		require.NoError(t, os.WriteFile(out, []byte("// PTX for "+cmd.Args[len(cmd.Args)-1]+"\n"), 0o600))
		return domain.ProcessResult{}, nil
	}
}

type fixture struct {
	inv    *invoker.Invoker
	runner *mocks.MockRunner
	dir    string
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Debug(gomock.Any()).AnyTimes()
	return fixture{
		inv:    invoker.New(runner, telemetry.NewNoOpTracer(), logger),
		runner: runner,
		dir:    t.TempDir(),
	}
}

func (f fixture) unit(name string) domain.CompileUnit {
	return domain.CompileUnit{
		Source: domain.SourceFile{Path: filepath.Join("/proj/k", name+".cu"), Kind: domain.KindKernel},
		Archs:  domain.ArchSet{"75"},
		Kind:   domain.ArtifactPTX,
		Output: filepath.Join(f.dir, name+".ptx"),
	}
}

func leftovers(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	require.NoError(t, err)
	return matches
}

func TestCompile_Success(t *testing.T) {
	t.Parallel()

	f := setup(t)
	f.runner.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(writeOutput(t)).Times(2)

	units := []domain.CompileUnit{f.unit("a"), f.unit("b")}
	compiled, err := f.inv.Compile(context.Background(), units, invoker.NewBuilder(domain.Config{}, "nvcc", nil),
		domain.EncodingCombined, 2)
	require.NoError(t, err)
	require.Len(t, compiled, 2)

	for i, c := range compiled {
		assert.Equal(t, units[i].Source.Path, c.Artifact.Source)
		assert.Equal(t, units[i].Output, c.Artifact.Path)
		assert.False(t, c.Artifact.Reused)
		data, err := os.ReadFile(c.Artifact.Path)
		require.NoError(t, err)
		assert.Equal(t, "// PTX for "+units[i].Source.Path+"\n", string(data))
	}
	assert.Empty(t, leftovers(t, f.dir))
}

func TestCompile_Failure(t *testing.T) {
	t.Parallel()

	f := setup(t)
	f.runner.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmd domain.Command, _ io.Writer) (domain.ProcessResult, error) {
			out := outputArg(t, cmd.Args)
			require.NoError(t, os.WriteFile(out, []byte("partial"), 0o600))
			return domain.ProcessResult{
				ExitCode: 2,
				Output:   []byte("/proj/k/broken.cu(3): error: expected a \";\"\n"),
			}, nil
		})

	unit := f.unit("broken")
	compiled, err := f.inv.Compile(context.Background(), []domain.CompileUnit{unit},
		invoker.NewBuilder(domain.Config{}, "nvcc", nil), domain.EncodingCombined, 1)
	require.Error(t, err)
	assert.Empty(t, compiled)
	require.ErrorIs(t, err, domain.ErrCompile)

	be, ok := domain.AsBuildError(err)
	require.True(t, ok)
	assert.Equal(t, "/proj/k/broken.cu", be.Path)
	assert.Contains(t, be.Command, "nvcc --ptx -o ")
	assert.Contains(t, be.Diagnostics, `error: expected a ";"`)
	assert.ErrorContains(t, be.Err, domain.ErrToolExit.Error())

	assert.NoFileExists(t, unit.Output)
	assert.Empty(t, leftovers(t, f.dir))
}

func TestCompile_SpanPerUnit(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)
	tracer := mocks.NewMockTracer(ctrl)
	span := mocks.NewMockSpan(ctrl)
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Debug(gomock.Any()).AnyTimes()
	inv := invoker.New(runner, tracer, logger)
	dir := t.TempDir()

	unit := domain.CompileUnit{
		Source: domain.SourceFile{Path: "/proj/k/broken.cu", Kind: domain.KindKernel},
		Archs:  domain.ArchSet{"75"},
		Kind:   domain.ArtifactPTX,
		Output: filepath.Join(dir, "broken.ptx"),
	}

	ctx := context.Background()
	gomock.InOrder(
		tracer.EXPECT().Start(gomock.Any(), "broken.cu", gomock.Any()).Return(ctx, span),
		span.EXPECT().SetAttribute("source", "/proj/k/broken.cu"),
		span.EXPECT().SetAttribute("archs", []string{"75"}),
		runner.EXPECT().Run(gomock.Any(), gomock.Any(), span).
			Return(domain.ProcessResult{ExitCode: 2, Output: []byte("error")}, nil),
		span.EXPECT().RecordError(gomock.Any()).Do(func(err error) {
			assert.ErrorIs(t, err, domain.ErrCompile)
		}),
		span.EXPECT().End(),
	)

	_, err := inv.Compile(ctx, []domain.CompileUnit{unit},
		invoker.NewBuilder(domain.Config{}, "nvcc", nil), domain.EncodingCombined, 1)
	require.ErrorIs(t, err, domain.ErrCompile)
}

func TestCompile_NoDispatchAfterFailure(t *testing.T) {
	t.Parallel()

	f := setup(t)
	f.runner.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.ProcessResult{ExitCode: 1}, nil).
		Times(1)

	units := []domain.CompileUnit{f.unit("a"), f.unit("b"), f.unit("c")}
	compiled, err := f.inv.Compile(context.Background(), units, invoker.NewBuilder(domain.Config{}, "nvcc", nil),
		domain.EncodingCombined, 1)
	require.Error(t, err)
	assert.Empty(t, compiled)

	be, ok := domain.AsBuildError(err)
	require.True(t, ok)
	assert.Equal(t, "/proj/k/a.cu", be.Path)
}

func TestCompile_ReportsSmallestFailingPath(t *testing.T) {
	t.Parallel()

	f := setup(t)

	// Both units must be running before either returns.
	var started sync.WaitGroup
	started.Add(2)
	f.runner.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmd domain.Command, _ io.Writer) (domain.ProcessResult, error) {
			started.Done()
			done := make(chan struct{})
			go func() { started.Wait(); close(done) }()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Error("units did not run concurrently")
			}
			src := cmd.Args[len(cmd.Args)-1]
			if src == "/proj/k/b.cu" {
				return domain.ProcessResult{ExitCode: 1, Output: []byte("b failed")}, nil
			}
			return domain.ProcessResult{ExitCode: 1, Output: []byte("a failed")}, nil
		}).Times(2)

	units := []domain.CompileUnit{f.unit("a"), f.unit("b")}
	_, err := f.inv.Compile(context.Background(), units, invoker.NewBuilder(domain.Config{}, "nvcc", nil),
		domain.EncodingCombined, 2)
	require.Error(t, err)

	be, ok := domain.AsBuildError(err)
	require.True(t, ok)
	assert.Equal(t, "/proj/k/a.cu", be.Path)
	assert.Equal(t, "a failed", be.Diagnostics)
}

func TestCompile_PartialSuccessIsReturned(t *testing.T) {
	t.Parallel()

	f := setup(t)
	gomock.InOrder(
		f.runner.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(writeOutput(t)),
		f.runner.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.ProcessResult{ExitCode: 1}, nil),
	)

	units := []domain.CompileUnit{f.unit("a"), f.unit("b")}
	compiled, err := f.inv.Compile(context.Background(), units, invoker.NewBuilder(domain.Config{}, "nvcc", nil),
		domain.EncodingCombined, 1)
	require.Error(t, err)
	require.Len(t, compiled, 1)
	assert.Equal(t, "/proj/k/a.cu", compiled[0].Unit.Source.Path)
}

func TestCompile_PerArchVariants(t *testing.T) {
	t.Parallel()

	f := setup(t)

	var mu sync.Mutex
	var archFlags []string
	f.runner.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, cmd domain.Command, w io.Writer) (domain.ProcessResult, error) {
			for _, a := range cmd.Args {
				if len(a) > 19 && a[:19] == "--gpu-architecture=" {
					mu.Lock()
					archFlags = append(archFlags, a)
					mu.Unlock()
				}
			}
			return writeOutput(t)(ctx, cmd, w)
		}).Times(2)

	unit := f.unit("saxpy")
	unit.Archs = domain.ArchSet{"75", "86"}
	unit.Variants = []domain.Variant{
		{Arch: "75", Path: filepath.Join(f.dir, "saxpy.sm_75.ptx")},
		{Arch: "86", Path: filepath.Join(f.dir, "saxpy.sm_86.ptx")},
	}
	unit.Output = unit.Variants[0].Path

	compiled, err := f.inv.Compile(context.Background(), []domain.CompileUnit{unit},
		invoker.NewBuilder(domain.Config{}, "nvcc", nil), domain.EncodingPerArch, 1)
	require.NoError(t, err)
	require.Len(t, compiled, 1)

	assert.Equal(t, []string{"--gpu-architecture=sm_75", "--gpu-architecture=sm_86"}, archFlags)
	assert.Equal(t, unit.Variants, compiled[0].Artifact.Variants)
	for _, v := range unit.Variants {
		assert.FileExists(t, v.Path)
	}
}

func TestCompile_FailedVariantLeavesNoArtifact(t *testing.T) {
	t.Parallel()

	f := setup(t)
	f.runner.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, cmd domain.Command, w io.Writer) (domain.ProcessResult, error) {
			if slices.Contains(cmd.Args, "--gpu-architecture=sm_86") {
				return domain.ProcessResult{ExitCode: 1, Output: []byte("ptxas fatal: sm_86\n")}, nil
			}
			return writeOutput(t)(ctx, cmd, w)
		}).Times(2)

	unit := f.unit("saxpy")
	unit.Archs = domain.ArchSet{"75", "86"}
	unit.Variants = []domain.Variant{
		{Arch: "75", Path: filepath.Join(f.dir, "saxpy.sm_75.ptx")},
		{Arch: "86", Path: filepath.Join(f.dir, "saxpy.sm_86.ptx")},
	}
	unit.Output = unit.Variants[0].Path

	compiled, err := f.inv.Compile(context.Background(), []domain.CompileUnit{unit},
		invoker.NewBuilder(domain.Config{}, "nvcc", nil), domain.EncodingPerArch, 1)
	require.ErrorIs(t, err, domain.ErrCompile)
	assert.Empty(t, compiled)

	for _, v := range unit.Variants {
		assert.NoFileExists(t, v.Path)
	}
	assert.Empty(t, leftovers(t, f.dir))
}

func TestCompile_StartFailure(t *testing.T) {
	t.Parallel()

	f := setup(t)
	f.runner.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.ProcessResult{ExitCode: -1}, errors.Join(domain.ErrProcessStart, zerr.New("exec: not found")))

	_, err := f.inv.Compile(context.Background(), []domain.CompileUnit{f.unit("a")},
		invoker.NewBuilder(domain.Config{}, "nvcc", nil), domain.EncodingCombined, 1)
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrCompile)
	require.ErrorIs(t, err, domain.ErrProcessStart)
}

func TestCompile_MissingOutput(t *testing.T) {
	t.Parallel()

	f := setup(t)
	f.runner.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.ProcessResult{}, nil)

	_, err := f.inv.Compile(context.Background(), []domain.CompileUnit{f.unit("a")},
		invoker.NewBuilder(domain.Config{}, "nvcc", nil), domain.EncodingCombined, 1)
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrIO)
}
