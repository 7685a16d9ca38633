package aggregator

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/zerr"
)

func (a *Aggregator) assemble(in Input) (Output, error) {
	out := Output{Descriptor: in.Output}

	data, err := EncodeDescriptor(NewDescriptor(filepath.Dir(in.Output), in.Artifacts))
	if err != nil {
		return Output{}, domain.IOError(in.Output, err)
	}

	//nolint:gosec // Path is derived from the configured output directory
	current, err := os.ReadFile(in.Output)
	switch {
	case err == nil && bytes.Equal(current, data):
		return out, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return Output{}, domain.IOError(in.Output, zerr.Wrap(err, "failed to read generation descriptor"))
	}

	if err := writeFileAtomic(in.Output, data); err != nil {
		return Output{}, domain.IOError(in.Output, err)
	}
	a.logger.Debug("wrote generation descriptor " + in.Output)
	out.Changed = true
	return out, nil
}

// NewDescriptor lists one module per artifact, in artifact order.
// Paths are made relative to base where possible.
func NewDescriptor(base string, artifacts []domain.Artifact) domain.Descriptor {
	desc := domain.Descriptor{Modules: make([]domain.Module, 0, len(artifacts))}
	for _, art := range artifacts {
		stem := domain.SourceFile{Path: art.Source}.Stem()
		mod := domain.Module{
			Name:   domain.ModuleName(stem),
			Source: relative(base, art.Source),
			Path:   relative(base, art.Path),
		}
		for _, v := range art.Variants {
			mod.Variants = append(mod.Variants, domain.Variant{Arch: v.Arch, Path: relative(base, v.Path)})
		}
		desc.Modules = append(desc.Modules, mod)
	}
	return desc
}

// EncodeDescriptor renders desc as indented JSON with a trailing newline.
func EncodeDescriptor(desc domain.Descriptor) ([]byte, error) {
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return nil, zerr.Wrap(err, "failed to encode generation descriptor")
	}
	return append(data, '\n'), nil
}

func relative(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
