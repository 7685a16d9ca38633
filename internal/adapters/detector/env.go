// Package detector inspects the terminal and CI environment to pick output modes.
package detector

import (
	"os"

	"golang.org/x/term"
)

// ProgressMode selects how build progress is rendered.
type ProgressMode int

const (
	// ModeAuto detects the appropriate mode.
	ModeAuto ProgressMode = iota
	// ModeLinear prints one line per step and prefixed tool output.
	ModeLinear
	// ModeQuiet prints nothing but warnings and the final error.
	ModeQuiet
)

// LogFormat selects the log encoding.
type LogFormat int

const (
	// FormatAuto detects the appropriate format.
	FormatAuto LogFormat = iota
	// FormatPretty is the colored human-readable format.
	FormatPretty
	// FormatJSON is one JSON object per line.
	FormatJSON
)

// Environment is a snapshot of what detection looks at.
type Environment struct {
	// IsTTY reports whether stderr is a terminal.
	IsTTY bool
	// IsCI reports whether CI is set to "true" or "1".
	IsCI bool
}

// Current inspects the running process.
func Current() Environment {
	ci := os.Getenv("CI")
	return Environment{
		IsTTY: term.IsTerminal(int(os.Stderr.Fd())),
		IsCI:  ci == "true" || ci == "1",
	}
}

// Progress returns the recommended progress mode.
// Output captured by a host build without CI gets no progress lines.
func (e Environment) Progress() ProgressMode {
	if e.IsTTY || e.IsCI {
		return ModeLinear
	}
	return ModeQuiet
}

// LogFormat returns the recommended log format.
func (e Environment) LogFormat() LogFormat {
	if e.IsTTY || e.IsCI {
		return FormatPretty
	}
	return FormatJSON
}

// ResolveProgress applies the --progress flag ("auto", "linear", "quiet") to detection.
func ResolveProgress(detected ProgressMode, flag string) ProgressMode {
	switch flag {
	case "linear", "ci":
		return ModeLinear
	case "quiet", "none":
		return ModeQuiet
	default:
		return detected
	}
}

// ResolveLogFormat applies the --log-format flag ("auto", "pretty", "json") to detection.
func ResolveLogFormat(detected LogFormat, flag string) LogFormat {
	switch flag {
	case "pretty", "text":
		return FormatPretty
	case "json":
		return FormatJSON
	default:
		return detected
	}
}
