package domain

import (
	"errors"
	"strings"

	"go.trai.ch/zerr"
)

// Error kinds. Every failure surfaced by a build matches exactly one of these with errors.Is.
var (
	// ErrSourceDiscovery is returned when a configured source root is missing or unreadable.
	ErrSourceDiscovery = zerr.New("source discovery failed")

	// ErrCapabilityResolution is returned when the target architecture set cannot be determined.
	ErrCapabilityResolution = zerr.New("capability resolution failed")

	// ErrCompile is returned when the device compiler exits with a non-zero status.
	ErrCompile = zerr.New("kernel compilation failed")

	// ErrArchive is returned when the archiver exits with a non-zero status.
	ErrArchive = zerr.New("archive creation failed")

	// ErrIO is returned when an artifact or the build record cannot be read or written.
	ErrIO = zerr.New("artifact io failed")

	// ErrConfig is returned when the options are contradictory or malformed.
	ErrConfig = zerr.New("invalid configuration")
)

// Causes wrapped inside a BuildError.
var (
	// ErrRootNotFound is returned when a source root does not exist.
	ErrRootNotFound = zerr.New("source root not found")

	// ErrRootNotDir is returned when a source root is not a directory.
	ErrRootNotDir = zerr.New("source root is not a directory")

	// ErrInvalidArch is returned when an architecture code does not match the accepted pattern.
	ErrInvalidArch = zerr.New("invalid architecture code, expected digits with an optional letter suffix (e.g. 86, 90a)")

	// ErrUnsupportedArch is returned when the toolchain cannot target a requested architecture.
	ErrUnsupportedArch = zerr.New("toolchain cannot target architecture")

	// ErrConflictingArchs is returned when the config and environment overrides disagree.
	ErrConflictingArchs = zerr.New("conflicting architecture overrides")

	// ErrDuplicateStem is returned when two kernels would produce the same artifact name.
	ErrDuplicateStem = zerr.New("duplicate kernel stem")

	// ErrNoOutputDir is returned when no output directory is configured.
	ErrNoOutputDir = zerr.New("output directory is required")

	// ErrNoSources is returned when no source directory is configured.
	ErrNoSources = zerr.New("at least one source directory is required")

	// ErrUnknownMode is returned for an unrecognized output mode.
	ErrUnknownMode = zerr.New("unknown output mode, expected 'ptx' or 'lib'")

	// ErrUnknownArchEncoding is returned for an unrecognized architecture encoding.
	ErrUnknownArchEncoding = zerr.New("unknown arch encoding, expected 'auto', 'combined' or 'per-arch'")

	// ErrUnknownHeaderPolicy is returned for an unrecognized header policy.
	ErrUnknownHeaderPolicy = zerr.New("unknown header policy, expected 'direct' or 'all-headers'")

	// ErrInvalidParallelism is returned when the worker count is negative.
	ErrInvalidParallelism = zerr.New("parallelism must not be negative")

	// ErrToolExit is the cause recorded when an external tool exits with a non-zero status.
	ErrToolExit = zerr.New("tool exited with non-zero status")

	// ErrProcessStart is returned when an external tool cannot be started.
	ErrProcessStart = zerr.New("failed to start external tool")

	// ErrRecordCorrupt is returned when the build record cannot be decoded.
	ErrRecordCorrupt = zerr.New("build record is corrupt")

	// ErrConfigNotFound is returned when no kbuild.yaml exists in the directory or its parents.
	ErrConfigNotFound = zerr.New("could not find kbuild.yaml")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrFileHashFailed is returned when hashing a file fails.
	ErrFileHashFailed = zerr.New("failed to hash file content")
)

// BuildError is the structured failure handed back to the host build.
// It keeps the originating file, the full command line and the raw tool output
// so a toolchain problem can be told apart from a kernel bug.
type BuildError struct {
	// Kind is one of the Err* kind sentinels above.
	Kind error
	// Path is the source, artifact or root the failure relates to. Empty if not applicable.
	Path string
	// Command is the rendered external command, if one was run.
	Command string
	// Diagnostics is the raw combined output of the external tool.
	Diagnostics string
	// Err is the underlying cause.
	Err error
}

// Error renders the kind, the path, the cause and the diagnostics.
func (e *BuildError) Error() string {
	var b strings.Builder
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Path != "" {
		b.WriteString(": ")
		b.WriteString(e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Command != "" {
		b.WriteString("\ncommand: ")
		b.WriteString(e.Command)
	}
	if e.Diagnostics != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(e.Diagnostics, "\n"))
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *BuildError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewBuildError creates a BuildError of the given kind.
func NewBuildError(kind error, path string, cause error) *BuildError {
	return &BuildError{Kind: kind, Path: path, Err: cause}
}

// ConfigError creates a BuildError of kind ErrConfig.
func ConfigError(cause error) *BuildError {
	return &BuildError{Kind: ErrConfig, Err: cause}
}

// IOError creates a BuildError of kind ErrIO for path.
func IOError(path string, cause error) *BuildError {
	return &BuildError{Kind: ErrIO, Path: path, Err: cause}
}

// AsBuildError returns the BuildError in err's chain, if any.
func AsBuildError(err error) (*BuildError, bool) {
	var be *BuildError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
