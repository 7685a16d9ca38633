package invoker

import (
	"maps"
	"slices"

	"go.trai.ch/kbuild/internal/core/domain"
)

// Builder renders compiler commands for one pass. The shared flags are fixed at
// construction, so every unit of a pass is compiled with the same options.
type Builder struct {
	compiler string
	// before precedes the architecture flags, after follows them.
	before []string
	after  []string
}

// NewBuilder creates a Builder. headerDirs are appended to the configured include
// directories, skipping duplicates.
func NewBuilder(cfg domain.Config, compiler string, headerDirs []string) *Builder {
	b := &Builder{compiler: compiler}

	b.before = append(b.before, "--default-stream", "per-thread")

	seen := make(map[string]struct{})
	for _, dir := range slices.Concat(cfg.IncludeDirs, headerDirs) {
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		b.before = append(b.before, "-I"+dir)
	}

	for _, key := range slices.Sorted(maps.Keys(cfg.Defines)) {
		if v := cfg.Defines[key]; v != "" {
			b.before = append(b.before, "-D"+key+"="+v)
		} else {
			b.before = append(b.before, "-D"+key)
		}
	}

	if cfg.OptLevel != "" {
		b.before = append(b.before, "-O"+cfg.OptLevel)
	}

	b.after = append(b.after, cfg.ExtraFlags...)
	if cfg.CCBin != "" {
		b.after = append(b.after, "-ccbin", cfg.CCBin, "-allow-unsupported-compiler")
	}
	return b
}

// Compiler returns the program every command runs.
func (b *Builder) Compiler() string {
	return b.compiler
}

// Flags returns the compiler and every flag shared by all units, in command order.
func (b *Builder) Flags() []string {
	return slices.Concat([]string{b.compiler}, b.before, b.after)
}

// Invocation is one compiler run of a unit.
type Invocation struct {
	ArchFlags []string
	// Output is the final path of the file this run produces.
	Output string
}

// Invocations splits unit into compiler runs according to the resolved encoding.
func Invocations(unit domain.CompileUnit, enc domain.ArchEncoding) []Invocation {
	if len(unit.Variants) > 0 {
		out := make([]Invocation, len(unit.Variants))
		for i, v := range unit.Variants {
			out[i] = Invocation{ArchFlags: ArchFlags(domain.EncodingPerArch, domain.ArchSet{v.Arch}), Output: v.Path}
		}
		return out
	}
	return []Invocation{{ArchFlags: ArchFlags(enc, unit.Archs), Output: unit.Output}}
}

// ArchFlags renders the architecture selection for archs.
// Per-arch encoding expects a single architecture.
func ArchFlags(enc domain.ArchEncoding, archs domain.ArchSet) []string {
	if enc == domain.EncodingPerArch && len(archs) == 1 {
		return []string{"--gpu-architecture=sm_" + archs[0]}
	}
	flags := make([]string, len(archs))
	for i, a := range archs {
		flags[i] = "--generate-code=arch=compute_" + a + ",code=sm_" + a
	}
	return flags
}

// Command renders the compiler command for one invocation writing to out.
func (b *Builder) Command(unit domain.CompileUnit, inv Invocation, out string) domain.Command {
	mode := "--ptx"
	if unit.Kind == domain.ArtifactObject {
		mode = "-c"
	}
	args := make([]string, 0, 3+len(b.before)+len(inv.ArchFlags)+len(b.after)+1)
	args = append(args, mode, "-o", out)
	args = append(args, b.before...)
	args = append(args, inv.ArchFlags...)
	args = append(args, b.after...)
	args = append(args, unit.Source.Path)
	return domain.Command{Program: b.compiler, Args: args}
}
