package domain

import (
	"path/filepath"
	"slices"

	"go.trai.ch/zerr"
)

// Config is the resolved option set for one build.
type Config struct {
	// SourceDirs are the roots scanned for kernels and headers.
	SourceDirs []string
	// IncludeDirs are passed as -I in addition to the directories holding headers.
	IncludeDirs []string
	// Defines are passed as -DKEY=VALUE (or -DKEY when VALUE is empty).
	Defines map[string]string
	// OutputDir holds artifacts and the build record.
	OutputDir string
	// Compiler overrides the discovered nvcc binary.
	Compiler string
	// Archs is the explicit architecture override.
	Archs []string
	// EnvArchs is the override read from CUDA_COMPUTE_CAP.
	EnvArchs []string
	// ExtraFlags are appended to every compiler invocation.
	ExtraFlags []string
	// Archiver overrides the tool used to build the static archive.
	Archiver string
	// CCBin is the host compiler handed to nvcc via -ccbin.
	CCBin string
	// OptLevel is passed as -O<level> when non-empty.
	OptLevel string
	// Parallelism bounds concurrent compiler processes. Zero means one per CPU.
	Parallelism int
	Mode        OutputMode
	Encoding    ArchEncoding
	Headers     HeaderPolicy
	KernelExts  []string
	HeaderExts  []string
	// Force ignores the build record and recompiles every kernel.
	Force bool
}

// Default file names and extensions.
const (
	DefaultDescriptor = "kernels.json"
	DefaultLibrary    = "libkernels.a"
	DefaultCompiler   = "nvcc"
)

// DefaultKernelExts are the extensions compiled as kernels.
var DefaultKernelExts = []string{".cu"}

// DefaultHeaderExts are the extensions treated as headers.
var DefaultHeaderExts = []string{".cuh"}

// WithDefaults returns a copy of c with every unset option filled in.
func (c Config) WithDefaults() Config {
	if c.Mode == nil {
		c.Mode = AssemblyMode{}
	}
	switch m := c.Mode.(type) {
	case AssemblyMode:
		if m.Descriptor == "" {
			m.Descriptor = DefaultDescriptor
		}
		c.Mode = m
	case LibraryMode:
		if m.Output == "" {
			m.Output = DefaultLibrary
		}
		c.Mode = m
	}
	if c.Encoding == "" {
		c.Encoding = EncodingAuto
	}
	if c.Headers == "" {
		c.Headers = HeadersDirect
	}
	if len(c.KernelExts) == 0 {
		c.KernelExts = slices.Clone(DefaultKernelExts)
	}
	if len(c.HeaderExts) == 0 {
		c.HeaderExts = slices.Clone(DefaultHeaderExts)
	}
	return c
}

// Validate reports contradictory or malformed options before any work starts.
func (c Config) Validate() error {
	if len(c.SourceDirs) == 0 {
		return ConfigError(ErrNoSources)
	}
	if c.OutputDir == "" {
		return ConfigError(ErrNoOutputDir)
	}
	if c.Parallelism < 0 {
		return ConfigError(zerr.With(ErrInvalidParallelism, "parallelism", c.Parallelism))
	}
	switch c.Encoding {
	case EncodingAuto, EncodingCombined, EncodingPerArch, "":
	default:
		return ConfigError(zerr.With(ErrUnknownArchEncoding, "arch_encoding", string(c.Encoding)))
	}
	switch c.Headers {
	case HeadersDirect, HeadersAll, "":
	default:
		return ConfigError(zerr.With(ErrUnknownHeaderPolicy, "headers", string(c.Headers)))
	}
	if len(c.Archs) > 0 && len(c.EnvArchs) > 0 {
		cfg, err := NewArchSet(c.Archs)
		if err != nil {
			return &BuildError{Kind: ErrCapabilityResolution, Err: err}
		}
		env, err := NewArchSet(c.EnvArchs)
		if err != nil {
			return &BuildError{Kind: ErrCapabilityResolution, Err: err}
		}
		if !cfg.Equal(env) {
			return ConfigError(zerr.With(zerr.With(ErrConflictingArchs, "config", cfg.String()), "env", env.String()))
		}
	}
	return nil
}

// ModeOutputPath returns the descriptor or archive path, resolved against the output directory.
func (c Config) ModeOutputPath() string {
	var p string
	switch m := c.Mode.(type) {
	case AssemblyMode:
		p = m.Descriptor
	case LibraryMode:
		p = m.Output
	}
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.OutputDir, p)
}
