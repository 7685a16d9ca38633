package domain

import (
	"strings"
)

// ArtifactKind is the type of file produced for one source.
type ArtifactKind string

const (
	// ArtifactPTX is PTX assembly text.
	ArtifactPTX ArtifactKind = "ptx"
	// ArtifactObject is a relocatable object file.
	ArtifactObject ArtifactKind = "object"
)

// Ext returns the file extension, dot included.
func (k ArtifactKind) Ext() string {
	if k == ArtifactObject {
		return ".o"
	}
	return ".ptx"
}

// Variant is one per-architecture output of a unit.
type Variant struct {
	Arch string `json:"arch"`
	Path string `json:"path"`
}

// Artifact is the compiled output of one source file.
type Artifact struct {
	Source string       `json:"source"`
	Kind   ArtifactKind `json:"kind"`
	// Path is the primary output. For multi-arch PTX it is the lowest architecture,
	// which any newer device can JIT.
	Path string `json:"path"`
	// Variants lists every per-architecture output when the unit was compiled per arch
	// into more than one file. Path is always one of them.
	Variants []Variant `json:"variants,omitempty"`
	// Reused is true when the artifact came from the build record without a compile.
	Reused bool `json:"-"`
}

// Files returns every on-disk file the artifact consists of.
func (a Artifact) Files() []string {
	if len(a.Variants) == 0 {
		return []string{a.Path}
	}
	files := make([]string, len(a.Variants))
	for i, v := range a.Variants {
		files[i] = v.Path
	}
	return files
}

// CompileUnit is a kernel bound to its resolved flags and architecture set.
// It is built fresh per pass and consumed once by the compiler invoker.
type CompileUnit struct {
	Source SourceFile
	Archs  ArchSet
	Kind   ArtifactKind
	// Output is where the primary artifact goes.
	Output string
	// Variants are the per-architecture outputs of a per-arch PTX unit with more than
	// one architecture. Each variant is a separate compiler invocation.
	Variants []Variant
	// Fingerprint identifies the flag set the unit is compiled with.
	Fingerprint string
}

// Command is the concrete argument list for one external tool invocation.
// It is never mutated after construction.
type Command struct {
	Program string
	Args    []string
	// Env holds KEY=VALUE overrides applied on top of the inherited environment.
	Env []string
	Dir string
}

// Argv returns the program followed by its arguments.
func (c Command) Argv() []string {
	argv := make([]string, 0, len(c.Args)+1)
	argv = append(argv, c.Program)
	return append(argv, c.Args...)
}

// String renders the command as a shell-quoted line for diagnostics.
func (c Command) String() string {
	argv := c.Argv()
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`*?[]{}()<>|&;#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ProcessResult is the outcome of a finished external process.
type ProcessResult struct {
	ExitCode int
	// Output is stdout and stderr interleaved in arrival order.
	Output []byte
	Stdout []byte
	Stderr []byte
}

// Success reports whether the process exited with status 0.
func (r ProcessResult) Success() bool {
	return r.ExitCode == 0
}
