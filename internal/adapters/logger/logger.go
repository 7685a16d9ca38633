// Package logger implements a logging adapter using log/slog.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/core/ports"
)

// messager describes an error that can report its own message without the chain.
// This matches the Message() method provided by zerr.Error.
type messager interface {
	Message() string
}

// metadataer describes an error carrying structured key-value context.
type metadataer interface {
	Metadata() map[string]any
}

// ErrorEntry is one level of an error chain prepared for display.
type ErrorEntry struct {
	Message  string
	Metadata map[string]any
}

// Logger implements ports.Logger using log/slog.
type Logger struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	jsonMode bool
	output   io.Writer
	level    *slog.LevelVar
}

// New creates a new Logger instance writing pretty output to stderr at info level.
func New() ports.Logger {
	level := &slog.LevelVar{}
	level.Set(slog.LevelInfo)
	l := &Logger{output: os.Stderr, level: level}
	l.logger = slog.New(l.newHandler())
	return l
}

func (l *Logger) newHandler() slog.Handler {
	opts := &slog.HandlerOptions{Level: l.level}
	if l.jsonMode {
		return slog.NewJSONHandler(l.output, opts)
	}
	return NewPrettyHandler(l.output, opts)
}

// SetOutput updates the logger's output destination, preserving the JSON mode.
// If w is nil, os.Stderr is used.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w == nil {
		w = os.Stderr
	}
	l.output = w
	l.logger = slog.New(l.newHandler())
}

// SetJSON switches between JSON and pretty logging.
func (l *Logger) SetJSON(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.jsonMode = enable
	l.logger = slog.New(l.newHandler())
}

// SetVerbose enables debug messages, which include raw tool output.
func (l *Logger) SetVerbose(enable bool) {
	if enable {
		l.level.Set(slog.LevelDebug)
		return
	}
	l.level.Set(slog.LevelInfo)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Debug(msg)
}

// Info logs an informational message.
func (l *Logger) Info(msg string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Info(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Warn(msg)
}

// Error logs an error with its full cause chain.
// Build failures additionally carry the rendered command and the raw tool output.
func (l *Logger) Error(err error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err == nil {
		return
	}

	if l.jsonMode {
		attrs := []any{"error", err.Error()}
		if be, ok := domain.AsBuildError(err); ok {
			if be.Path != "" {
				attrs = append(attrs, "path", be.Path)
			}
			if be.Command != "" {
				attrs = append(attrs, "command", be.Command)
			}
			if be.Diagnostics != "" {
				attrs = append(attrs, "diagnostics", be.Diagnostics)
			}
		}
		l.logger.Error("operation failed", attrs...)
		return
	}

	msg := formatErrorEntries(collectErrorEntries(err))
	if be, ok := domain.AsBuildError(err); ok && be.Diagnostics != "" {
		msg += "\n\n" + formatDiagnostics(be.Diagnostics)
	}
	l.logger.Error(msg)
}

// collectErrorEntries flattens an error chain into display entries, outermost first.
func collectErrorEntries(err error) []ErrorEntry {
	var entries []ErrorEntry
	current := err

	for current != nil {
		if be, ok := current.(*domain.BuildError); ok {
			entries = append(entries, buildErrorEntry(be))
			current = be.Err
			continue
		}

		if m, ok := current.(messager); ok {
			entry := ErrorEntry{Message: m.Message()}
			if md, ok := current.(metadataer); ok {
				entry.Metadata = md.Metadata()
			}
			entries = append(entries, entry)
			current = errors.Unwrap(current)
			continue
		}

		if joined, ok := current.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				entries = append(entries, collectErrorEntries(e)...)
			}
			return entries
		}

		entries = append(entries, ErrorEntry{Message: current.Error()})
		break
	}

	return entries
}

func buildErrorEntry(be *domain.BuildError) ErrorEntry {
	var msg string
	if m, ok := be.Kind.(messager); ok {
		msg = m.Message()
	} else if be.Kind != nil {
		msg = be.Kind.Error()
	}
	if be.Path != "" {
		msg += ": " + be.Path
	}

	entry := ErrorEntry{Message: msg}
	if be.Command != "" {
		entry.Metadata = map[string]any{"command": be.Command}
	}
	return entry
}

// formatErrorEntries renders entries as a main error followed by its causes.
func formatErrorEntries(entries []ErrorEntry) string {
	var lines []string

	for i, entry := range entries {
		msgLines := strings.Split(entry.Message, "\n")

		var first, cont string
		if i == 0 {
			first, cont = "Error: ", "       "
		} else {
			if i == 1 {
				lines = append(lines, "", "  Caused by:")
			}
			first, cont = "    → ", "      "
		}

		lines = append(lines, first+msgLines[0])
		for _, line := range msgLines[1:] {
			lines = append(lines, cont+line)
		}
		for _, key := range slices.Sorted(maps.Keys(entry.Metadata)) {
			lines = append(lines, fmt.Sprintf("%s%s: %v", cont, key, entry.Metadata[key]))
		}
	}

	return strings.Join(lines, "\n")
}

func formatDiagnostics(diagnostics string) string {
	lines := []string{"  Tool output:"}
	for _, line := range strings.Split(strings.TrimRight(diagnostics, "\n"), "\n") {
		lines = append(lines, "    "+line)
	}
	return strings.Join(lines, "\n")
}
