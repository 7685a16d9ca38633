package kbuild_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kbuild"
)

// fakeNVCC answers --list-gpu-code, exits 2 for sources containing "#error"
// and otherwise writes a stub file to the -o path.
const fakeNVCC = `#!/bin/sh
if [ "$1" = "--list-gpu-code" ]; then
  echo sm_75
  echo sm_86
  exit 0
fi
out=""
src=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift ;;
    *.cu) src="$1" ;;
  esac
  shift
done
if grep -q '#error' "$src"; then
  echo "$src(1): error: forced failure" >&2
  exit 2
fi
echo "// ptx for $src" > "$out"
`

type discardLogger struct{}

func (discardLogger) Debug(string) {}
func (discardLogger) Info(string)  {}
func (discardLogger) Warn(string)  {}
func (discardLogger) Error(error)  {}

func setup(t *testing.T) (kernels, out, compiler string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake compiler is a shell script")
	}
	t.Setenv("CUDA_COMPUTE_CAP", "")
	t.Setenv("NVCC_CCBIN", "")
	t.Setenv("KBUILD_JOBS", "")

	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	kernels = filepath.Join(dir, "kernels")
	require.NoError(t, os.MkdirAll(kernels, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(kernels, "add.cu"), []byte("__global__ void add() {}\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(kernels, "mul.cu"), []byte("__global__ void mul() {}\n"), 0o600))

	compiler = filepath.Join(dir, "nvcc")
	require.NoError(t, os.WriteFile(compiler, []byte(fakeNVCC), 0o700)) //nolint:gosec // test script
	return kernels, filepath.Join(dir, "out"), compiler
}

func TestBuild_AssemblyMode(t *testing.T) {
	kernels, out, compiler := setup(t)

	opts := kbuild.Options{
		SourceDirs: []string{kernels},
		OutputDir:  out,
		Compiler:   compiler,
		Archs:      []string{"86"},
		Logger:     discardLogger{},
	}

	res, err := kbuild.Build(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, kbuild.ModePTX, res.Mode)
	assert.Equal(t, 2, res.Compiled)
	require.Len(t, res.Artifacts, 2)
	assert.FileExists(t, filepath.Join(out, "add.ptx"))
	assert.FileExists(t, filepath.Join(out, "mul.ptx"))
	assert.FileExists(t, res.Descriptor)

	res, err = kbuild.Build(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Compiled)
	assert.Equal(t, 2, res.Reused)
	assert.False(t, res.Changed)
}

func TestBuild_CompileError(t *testing.T) {
	kernels, out, compiler := setup(t)
	require.NoError(t, os.WriteFile(filepath.Join(kernels, "mul.cu"), []byte("#error broken\n"), 0o600))

	_, err := kbuild.Build(context.Background(), kbuild.Options{
		SourceDirs: []string{kernels},
		OutputDir:  out,
		Compiler:   compiler,
		Archs:      []string{"86"},
		Logger:     discardLogger{},
	})
	require.ErrorIs(t, err, kbuild.ErrCompile)

	var be *kbuild.BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, filepath.Join(kernels, "mul.cu"), be.Path)
	assert.Contains(t, be.Diagnostics, "forced failure")
	assert.NoFileExists(t, filepath.Join(out, "mul.ptx"))
}

func TestBuild_UnknownMode(t *testing.T) {
	_, err := kbuild.Build(context.Background(), kbuild.Options{
		SourceDirs: []string{"kernels"},
		OutputDir:  "out",
		Mode:       "cubin",
		Logger:     discardLogger{},
	})
	require.ErrorIs(t, err, kbuild.ErrConfig)
}

func TestBuild_ConflictingArchs(t *testing.T) {
	kernels, out, compiler := setup(t)
	t.Setenv("CUDA_COMPUTE_CAP", "75")

	_, err := kbuild.Build(context.Background(), kbuild.Options{
		SourceDirs: []string{kernels},
		OutputDir:  out,
		Compiler:   compiler,
		Archs:      []string{"86"},
		Logger:     discardLogger{},
	})
	require.ErrorIs(t, err, kbuild.ErrConfig)
	assert.NoDirExists(t, out)
}
