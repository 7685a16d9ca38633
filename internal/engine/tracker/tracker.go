// Package tracker decides which kernels must be recompiled.
package tracker

import (
	"slices"

	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/core/ports"
	"go.trai.ch/zerr"
)

// Input is everything change detection looks at for one pass.
type Input struct {
	Sources   domain.SourceSet
	Archs     domain.ArchSet
	Kind      domain.ArtifactKind
	Encoding  domain.ArchEncoding
	OutputDir string
	// Flags identifies the shared compiler flags. It is folded into the fingerprint.
	Flags   []string
	Headers domain.HeaderPolicy
	// Force marks every kernel stale.
	Force  bool
	Record *domain.BuildRecord
}

// Plan splits the kernels of a pass into units to compile and artifacts to reuse.
// Both lists are ordered by source path.
type Plan struct {
	Compile     []domain.CompileUnit
	Reuse       []domain.Artifact
	Fingerprint string
}

// Tracker compares the current sources against the build record.
type Tracker struct {
	hasher   ports.Hasher
	verifier ports.Verifier
}

// New creates a new Tracker.
func New(hasher ports.Hasher, verifier ports.Verifier) *Tracker {
	return &Tracker{hasher: hasher, verifier: verifier}
}

// Plan classifies every kernel. A kernel is reused only when its content hash,
// architecture set and flag fingerprint match the record and every recorded
// artifact file is still on disk.
func (t *Tracker) Plan(in Input) (Plan, error) {
	if err := checkStems(in); err != nil {
		return Plan{}, err
	}

	plan := Plan{Fingerprint: t.fingerprint(in)}
	for _, src := range in.Sources.Kernels {
		unit := NewUnit(src, in, plan.Fingerprint)

		reused, err := t.reusable(in, unit)
		if err != nil {
			return Plan{}, err
		}
		if reused != nil {
			plan.Reuse = append(plan.Reuse, *reused)
			continue
		}
		plan.Compile = append(plan.Compile, unit)
	}
	return plan, nil
}

// NewUnit binds a kernel to its outputs.
func NewUnit(src domain.SourceFile, in Input, fingerprint string) domain.CompileUnit {
	stem := src.Stem()
	unit := domain.CompileUnit{
		Source:      src,
		Archs:       in.Archs,
		Kind:        in.Kind,
		Output:      domain.ArtifactPath(in.OutputDir, stem, in.Kind),
		Fingerprint: fingerprint,
	}
	if in.Kind == domain.ArtifactPTX && in.Encoding == domain.EncodingPerArch && len(in.Archs) > 1 {
		for _, arch := range in.Archs {
			unit.Variants = append(unit.Variants, domain.Variant{
				Arch: arch,
				Path: domain.VariantPath(in.OutputDir, stem, arch),
			})
		}
		unit.Output = unit.Variants[0].Path
	}
	return unit
}

func (t *Tracker) reusable(in Input, unit domain.CompileUnit) (*domain.Artifact, error) {
	if in.Force {
		return nil, nil
	}
	entry, ok := in.Record.Get(unit.Source.Path)
	if !ok {
		return nil, nil
	}
	if entry.Hash != unit.Source.Hash ||
		!entry.Archs.Equal(unit.Archs) ||
		entry.Fingerprint != unit.Fingerprint ||
		entry.Kind != unit.Kind ||
		entry.Artifact != unit.Output ||
		!slices.Equal(entry.Variants, unit.Variants) {
		return nil, nil
	}

	artifact := entry.ToArtifact(unit.Source.Path)
	exists, err := t.verifier.Exists(artifact.Files())
	if err != nil {
		return nil, domain.IOError(artifact.Path, err)
	}
	if !exists {
		return nil, nil
	}
	return &artifact, nil
}

func (t *Tracker) fingerprint(in Input) string {
	parts := make([]string, 0, len(in.Flags)+3+2*len(in.Sources.Headers))
	parts = append(parts, string(in.Kind), string(in.Encoding))
	parts = append(parts, in.Flags...)
	if in.Headers == domain.HeadersAll {
		parts = append(parts, string(domain.HeadersAll))
		for _, h := range in.Sources.Headers {
			parts = append(parts, h.Path, h.Hash)
		}
	}
	return t.hasher.ComputeStringsHash(parts)
}

// checkStems rejects kernels that would write to the same artifact or share
// a descriptor module name.
func checkStems(in Input) error {
	paths := make(map[string]string, len(in.Sources.Kernels))
	modules := make(map[string]string, len(in.Sources.Kernels))
	for _, k := range in.Sources.Kernels {
		stem := k.Stem()
		module := domain.ModuleName(stem)
		if first, dup := modules[module]; dup {
			return duplicateStem(stem, first, k.Path, "module", module)
		}
		modules[module] = k.Path

		for _, path := range reservedPaths(in, stem) {
			if first, dup := paths[path]; dup {
				return duplicateStem(stem, first, k.Path, "artifact", path)
			}
			paths[path] = k.Path
		}
	}
	return nil
}

// reservedPaths lists the files a kernel may own. Under per-arch PTX encoding
// every variant name is reserved even for a single architecture, so a later
// change of the architecture set never points one file at two kernels.
func reservedPaths(in Input, stem string) []string {
	paths := []string{domain.ArtifactPath(in.OutputDir, stem, in.Kind)}
	if in.Kind == domain.ArtifactPTX && in.Encoding == domain.EncodingPerArch {
		for _, arch := range in.Archs {
			paths = append(paths, domain.VariantPath(in.OutputDir, stem, arch))
		}
	}
	return paths
}

func duplicateStem(stem, first, second, key, value string) error {
	err := zerr.Wrap(domain.ErrDuplicateStem, key+" "+value+" is also produced by "+first)
	err = zerr.With(err, "stem", stem)
	return domain.NewBuildError(domain.ErrConfig, second, err)
}
