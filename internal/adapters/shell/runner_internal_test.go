package shell

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveEnvironment(t *testing.T) {
	tests := []struct {
		name      string
		sysEnv    []string
		overrides []string
		expected  []string
	}{
		{
			name:     "System Only",
			sysEnv:   []string{"USER=test", "PATH=/bin", "HOME=/home/test"},
			expected: []string{"HOME=/home/test", "PATH=/bin", "USER=test"},
		},
		{
			name:     "Toolkit Search Paths Pass Through",
			sysEnv:   []string{"CPATH=/opt/include", "LIBRARY_PATH=/opt/lib", "CUDA_TOOLKIT_ROOT_DIR=/opt/cuda", "SystemRoot=C:\\Windows"},
			expected: []string{"CPATH=/opt/include", "CUDA_TOOLKIT_ROOT_DIR=/opt/cuda", "LIBRARY_PATH=/opt/lib", "SystemRoot=C:\\Windows"},
		},
		{
			name:     "CUDA Variables Pass Through",
			sysEnv:   []string{"CUDA_PATH=/usr/local/cuda", "LD_LIBRARY_PATH=/usr/local/cuda/lib64", "NVCC_APPEND_FLAGS=-lineinfo"},
			expected: []string{"CUDA_PATH=/usr/local/cuda", "LD_LIBRARY_PATH=/usr/local/cuda/lib64", "NVCC_APPEND_FLAGS=-lineinfo"},
		},
		{
			name:      "Overrides Win",
			sysEnv:    []string{"USER=test", "PATH=/bin"},
			overrides: []string{"PATH=/opt/cuda/bin", "FOO=bar"},
			expected:  []string{"FOO=bar", "PATH=/opt/cuda/bin", "USER=test"},
		},
		{
			name:      "Malformed Entries Ignored",
			sysEnv:    []string{"USER=test", "garbage"},
			overrides: []string{"novalue"},
			expected:  []string{"USER=test"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveEnvironment(tt.sysEnv, tt.overrides)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLookPath(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "nvcc")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755)) //nolint:gosec // test executable
	plain := filepath.Join(dir, "notexec")
	require.NoError(t, os.WriteFile(plain, []byte("x"), 0o600))

	got, err := lookPath("nvcc", []string{"PATH=" + dir})
	require.NoError(t, err)
	assert.Equal(t, exe, got)

	_, err = lookPath("notexec", []string{"PATH=" + dir})
	require.Error(t, err)

	_, err = lookPath("nvcc", []string{"HOME=/root"})
	require.Error(t, err)
}

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Debug(msg string) { r.lines = append(r.lines, msg) }
func (r *recordingLogger) Info(string)      {}
func (r *recordingLogger) Warn(string)      {}
func (r *recordingLogger) Error(error)      {}

func TestLogWriter_SplitsLines(t *testing.T) {
	log := &recordingLogger{}
	w := &logWriter{logger: log}

	_, err := w.Write([]byte("part1"))
	require.NoError(t, err)
	_, err = w.Write([]byte("part2\r\nsecond\n\ntail"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, []string{"part1part2", "second", "tail"}, log.lines)
}

func TestLogWriter_NilLogger(t *testing.T) {
	w := &logWriter{}
	n, err := w.Write([]byte("ignored\n"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.NoError(t, w.Close())
}
