package nvidia

import (
	"os"
	"path/filepath"

	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/core/ports"
)

var _ ports.Toolchain = (*Toolkit)(nil)

// RootEnvVars are consulted in order to locate the CUDA toolkit.
var RootEnvVars = []string{"CUDA_PATH", "CUDA_ROOT", "CUDA_TOOLKIT_ROOT_DIR", "CUDA_HOME"}

// DefaultRoots are probed when no environment variable names a toolkit.
var DefaultRoots = []string{"/usr/local/cuda", "/opt/cuda", "/usr/lib/cuda"}

// Toolkit locates the CUDA compiler.
type Toolkit struct {
	getenv func(string) string
	roots  []string
}

// NewToolkit creates a Toolkit reading the process environment.
func NewToolkit() *Toolkit {
	return &Toolkit{getenv: os.Getenv, roots: DefaultRoots}
}

// NewToolkitWith creates a Toolkit with an explicit environment lookup and default roots.
func NewToolkitWith(getenv func(string) string, roots []string) *Toolkit {
	return &Toolkit{getenv: getenv, roots: roots}
}

// Compiler returns the compiler to invoke. An explicit override wins, then the first
// toolkit root holding bin/nvcc, then the bare name resolved through PATH.
func (t *Toolkit) Compiler(override string) string {
	if override != "" {
		return override
	}
	for _, root := range t.candidateRoots() {
		nvcc := filepath.Join(root, "bin", domain.DefaultCompiler)
		if isExecutable(nvcc) {
			return nvcc
		}
	}
	return domain.DefaultCompiler
}

// Root returns the first toolkit root that contains include/cuda.h, or "".
func (t *Toolkit) Root() string {
	for _, root := range t.candidateRoots() {
		if info, err := os.Stat(filepath.Join(root, "include", "cuda.h")); err == nil && info.Mode().IsRegular() {
			return root
		}
	}
	return ""
}

func (t *Toolkit) candidateRoots() []string {
	roots := make([]string, 0, len(RootEnvVars)+len(t.roots))
	for _, key := range RootEnvVars {
		if v := t.getenv(key); v != "" {
			roots = append(roots, v)
		}
	}
	return append(roots, t.roots...)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Mode()&0o111 != 0
}
