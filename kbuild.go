// Package kbuild compiles CUDA kernel sources into PTX assembly or a static
// library as a step of a host build.
//
// A typical caller runs it from a generator:
//
//	res, err := kbuild.Build(ctx, kbuild.Options{
//		SourceDirs: []string{"kernels"},
//		OutputDir:  "internal/kernels/ptx",
//	})
//
// Every failure matches one of the Err* kinds with errors.Is and carries
// the file, command line and compiler output of the failing step.
package kbuild

import (
	"context"
	"maps"
	"os"
	"slices"

	"go.trai.ch/kbuild/internal/adapters/config"
	"go.trai.ch/kbuild/internal/adapters/fs"
	"go.trai.ch/kbuild/internal/adapters/logger"
	"go.trai.ch/kbuild/internal/adapters/nvidia"
	"go.trai.ch/kbuild/internal/adapters/record"
	"go.trai.ch/kbuild/internal/adapters/shell"
	"go.trai.ch/kbuild/internal/adapters/telemetry"
	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/engine/orchestrator"
)

// Output modes.
const (
	ModePTX = domain.ModePTX
	ModeLib = domain.ModeLib
)

// Error kinds returned by Build.
var (
	ErrSourceDiscovery      = domain.ErrSourceDiscovery
	ErrCapabilityResolution = domain.ErrCapabilityResolution
	ErrCompile              = domain.ErrCompile
	ErrArchive              = domain.ErrArchive
	ErrIO                   = domain.ErrIO
	ErrConfig               = domain.ErrConfig
)

type (
	// Result describes what a build produced.
	Result = domain.Result
	// Artifact is one compiled kernel.
	Artifact = domain.Artifact
	// BuildError is the structured failure of a build step.
	BuildError = domain.BuildError
)

// Logger receives progress messages. Debug carries compiler command lines.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(err error)
}

// Options configures a build. Only SourceDirs and OutputDir are required.
type Options struct {
	SourceDirs  []string
	IncludeDirs []string
	Defines     map[string]string
	OutputDir   string
	// Compiler overrides the nvcc discovered from CUDA_PATH, CUDA_ROOT,
	// CUDA_TOOLKIT_ROOT_DIR, the standard install prefixes and PATH.
	Compiler string
	// Archs overrides device detection. A CUDA_COMPUTE_CAP value that names a
	// different set is a configuration error.
	Archs      []string
	ExtraFlags []string
	// Archiver overrides `nvcc --lib` in library mode.
	Archiver string
	// Mode is ModePTX (default) or ModeLib.
	Mode string
	// Descriptor is the generation descriptor path in PTX mode.
	Descriptor string
	// Library is the archive path in library mode.
	Library string
	// OptLevel is passed as -O<level>.
	OptLevel string
	// Parallelism bounds concurrent compiler processes. Zero means one per CPU.
	Parallelism  int
	ArchEncoding string
	Headers      string
	KernelExts   []string
	HeaderExts   []string
	// CCBin is the host compiler passed to nvcc. NVCC_CCBIN is used when empty.
	CCBin string
	Force bool
	// Logger defaults to a colored stderr logger.
	Logger Logger
}

// Build compiles every changed kernel below opts.SourceDirs and writes the
// descriptor or archive. Kernels whose inputs are unchanged since the last
// build are reused.
func Build(ctx context.Context, opts Options) (*Result, error) {
	cfg, err := opts.config()
	if err != nil {
		return nil, err
	}
	cfg, err = config.ApplyEnv(cfg, os.Getenv)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.New()
	}

	hasher := fs.NewHasher()
	runner := shell.NewRunner(log)
	orch := orchestrator.New(
		fs.NewCollector(fs.NewWalker(), hasher),
		nvidia.NewToolkit(),
		nvidia.NewProber(runner),
		hasher,
		fs.NewVerifier(),
		runner,
		record.NewStore(),
		telemetry.NewNoOpTracer(),
		log,
	)
	return orch.Build(ctx, cfg)
}

func (o Options) config() (domain.Config, error) {
	mode, err := config.ParseMode(o.Mode, o.Descriptor, o.Library)
	if err != nil {
		return domain.Config{}, err
	}
	return domain.Config{
		SourceDirs:  slices.Clone(o.SourceDirs),
		IncludeDirs: slices.Clone(o.IncludeDirs),
		Defines:     maps.Clone(o.Defines),
		OutputDir:   o.OutputDir,
		Compiler:    o.Compiler,
		Archs:       slices.Clone(o.Archs),
		ExtraFlags:  slices.Clone(o.ExtraFlags),
		Archiver:    o.Archiver,
		CCBin:       o.CCBin,
		OptLevel:    o.OptLevel,
		Parallelism: o.Parallelism,
		Mode:        mode,
		Encoding:    domain.ArchEncoding(o.ArchEncoding),
		Headers:     domain.HeaderPolicy(o.Headers),
		KernelExts:  slices.Clone(o.KernelExts),
		HeaderExts:  slices.Clone(o.HeaderExts),
		Force:       o.Force,
	}, nil
}
