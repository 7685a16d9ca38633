// Package orchestrator chains discovery, capability resolution, change tracking,
// compilation and aggregation into one build pass.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/core/ports"
	"go.trai.ch/kbuild/internal/engine/aggregator"
	"go.trai.ch/kbuild/internal/engine/capability"
	"go.trai.ch/kbuild/internal/engine/invoker"
	"go.trai.ch/kbuild/internal/engine/tracker"
	"go.trai.ch/zerr"
)

// Orchestrator runs build passes.
type Orchestrator struct {
	collector  ports.SourceCollector
	toolchain  ports.Toolchain
	store      ports.RecordStore
	tracer     ports.Tracer
	logger     ports.Logger
	resolver   *capability.Resolver
	tracker    *tracker.Tracker
	invoker    *invoker.Invoker
	aggregator *aggregator.Aggregator
}

// New creates a new Orchestrator.
func New(
	collector ports.SourceCollector,
	toolchain ports.Toolchain,
	prober ports.DeviceProber,
	hasher ports.Hasher,
	verifier ports.Verifier,
	runner ports.Runner,
	store ports.RecordStore,
	tracer ports.Tracer,
	logger ports.Logger,
) *Orchestrator {
	return &Orchestrator{
		collector:  collector,
		toolchain:  toolchain,
		store:      store,
		tracer:     tracer,
		logger:     logger,
		resolver:   capability.NewResolver(prober, logger),
		tracker:    tracker.New(hasher, verifier),
		invoker:    invoker.New(runner, tracer, logger),
		aggregator: aggregator.New(runner, tracer, verifier, logger),
	}
}

// Resolve reports the architecture set a build with cfg would target.
func (o *Orchestrator) Resolve(ctx context.Context, cfg domain.Config) (capability.Resolution, error) {
	cfg = cfg.WithDefaults()
	return o.resolver.Resolve(ctx, cfg, o.toolchain.Compiler(cfg.Compiler))
}

// Build runs one pass. The build record of the output directory is loaded once
// before any compiler starts and saved once after all of them have finished,
// including when a unit failed, so successful compiles are kept.
//
//nolint:cyclop,funlen // orchestration function
func (o *Orchestrator) Build(ctx context.Context, cfg domain.Config) (result *domain.Result, err error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "build", ports.WithKind("build"))
	defer func() {
		span.RecordError(err)
		span.End()
	}()

	// 1. Discover sources.
	sources, err := o.collector.Collect(cfg.SourceDirs, cfg.KernelExts, cfg.HeaderExts)
	if err != nil {
		return nil, err
	}
	o.logger.Debug(fmt.Sprintf("found %d kernel(s) and %d header(s)", len(sources.Kernels), len(sources.Headers)))

	// 2. Resolve the target architectures.
	compiler := o.toolchain.Compiler(cfg.Compiler)
	res, err := o.resolver.Resolve(ctx, cfg, compiler)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("targeting sm " + res.Describe())
	span.SetAttribute("archs", []string(res.Archs))

	// 3. Prepare the output directory and load the record.
	outDir, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return nil, domain.IOError(cfg.OutputDir, zerr.Wrap(err, "failed to resolve output directory"))
	}
	if err := os.MkdirAll(outDir, domain.DirPerm); err != nil {
		return nil, domain.IOError(outDir, zerr.Wrap(err, "failed to create output directory"))
	}
	rec, err := o.store.Load(outDir)
	if err != nil {
		return nil, err
	}
	previous := recordedFiles(rec)
	prevArchive := rec.Archive

	// 4. Decide what to compile.
	enc := cfg.Encoding.Resolve(cfg.Mode, res.Archs)
	if cfg.Encoding == domain.EncodingPerArch && enc != domain.EncodingPerArch {
		o.logger.Warn("per-arch encoding is ignored for " + cfg.Mode.Name() + " mode, objects embed every architecture")
	}
	builder := invoker.NewBuilder(cfg, compiler, sources.HeaderDirs())
	plan, err := o.tracker.Plan(tracker.Input{
		Sources:   sources,
		Archs:     res.Archs,
		Kind:      cfg.Mode.ArtifactKind(),
		Encoding:  enc,
		OutputDir: outDir,
		Flags:     builder.Flags(),
		Headers:   cfg.Headers,
		Force:     cfg.Force,
		Record:    rec,
	})
	if err != nil {
		return nil, err
	}
	o.tracer.EmitPlan(ctx, unitSources(plan.Compile), artifactSources(plan.Reuse))

	// 5. Compile.
	compiled, err := o.invoker.Compile(ctx, plan.Compile, builder, enc, cfg.Parallelism)
	for _, c := range compiled {
		rec.Put(c.Unit.Source.Path, domain.EntryFor(c.Unit, c.Artifact))
	}
	if err != nil {
		o.save(outDir, rec)
		return nil, err
	}

	keep := make(map[string]struct{}, len(sources.Kernels))
	for _, k := range sources.Kernels {
		keep[k.Path] = struct{}{}
	}
	rec.Prune(keep)

	artifacts := make([]domain.Artifact, 0, len(plan.Reuse)+len(compiled))
	artifacts = append(artifacts, plan.Reuse...)
	for _, c := range compiled {
		artifacts = append(artifacts, c.Artifact)
	}
	slices.SortFunc(artifacts, func(a, b domain.Artifact) int { return strings.Compare(a.Source, b.Source) })

	// 6. Aggregate.
	modeOut, err := filepath.Abs(modeOutputPath(cfg, outDir))
	if err != nil {
		return nil, domain.IOError(cfg.ModeOutputPath(), zerr.Wrap(err, "failed to resolve output path"))
	}
	stale := staleFiles(previous, artifacts)
	if prevArchive != nil && prevArchive.Path != modeOut {
		stale = append(stale, prevArchive.Path)
	}

	out, err := o.aggregator.Aggregate(ctx, aggregator.Input{
		Mode:      cfg.Mode,
		Output:    modeOut,
		Artifacts: artifacts,
		Compiled:  len(compiled),
		Stale:     stale,
		Archiver:  cfg.Archiver,
		Compiler:  compiler,
		Previous:  prevArchive,
	})
	if err != nil {
		rec.Archive = nil
		o.save(outDir, rec)
		return nil, err
	}
	rec.Archive = out.Record

	// 7. Persist.
	if err := o.store.Save(outDir, rec); err != nil {
		return nil, err
	}

	return &domain.Result{
		Mode:       cfg.Mode.Name(),
		Artifacts:  artifacts,
		Archs:      res.Archs,
		Descriptor: out.Descriptor,
		Archive:    out.Archive,
		Compiled:   len(compiled),
		Reused:     len(plan.Reuse),
		Changed:    len(compiled) > 0 || out.Changed,
	}, nil
}

// save persists rec on a failure path, where the build error takes precedence.
func (o *Orchestrator) save(outDir string, rec *domain.BuildRecord) {
	if err := o.store.Save(outDir, rec); err != nil {
		o.logger.Warn("failed to save build record: " + err.Error())
	}
}

func modeOutputPath(cfg domain.Config, outDir string) string {
	cfg.OutputDir = outDir
	return cfg.ModeOutputPath()
}

// recordedFiles lists every artifact file the record owns.
func recordedFiles(rec *domain.BuildRecord) []string {
	var files []string
	for _, path := range rec.Paths() {
		files = append(files, rec.Entries[path].ToArtifact(path).Files()...)
	}
	return files
}

// staleFiles returns the previous files no current artifact owns.
func staleFiles(previous []string, artifacts []domain.Artifact) []string {
	current := make(map[string]struct{})
	for _, a := range artifacts {
		for _, f := range a.Files() {
			current[f] = struct{}{}
		}
	}
	var stale []string
	for _, f := range previous {
		if _, ok := current[f]; !ok {
			stale = append(stale, f)
		}
	}
	return stale
}

func unitSources(units []domain.CompileUnit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.Source.Path
	}
	return out
}

func artifactSources(artifacts []domain.Artifact) []string {
	out := make([]string, len(artifacts))
	for i, a := range artifacts {
		out[i] = a.Source
	}
	return out
}
