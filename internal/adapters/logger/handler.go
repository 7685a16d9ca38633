package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"go.trai.ch/kbuild/internal/ui/output"
	"go.trai.ch/kbuild/internal/ui/style"
)

// PrettyHandler is a slog.Handler for terminals. Each record is one colored line:
// a level glyph, the message and key=value attributes.
type PrettyHandler struct {
	out   *termenv.Output
	level slog.Leveler
	attrs []slog.Attr
	group string
}

// NewPrettyHandler creates a new PrettyHandler writing to w, or stderr if w is nil.
// A LevelVar passed in opts stays live: later changes to it apply to this handler.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	if w == nil {
		w = os.Stderr
	}

	h := &PrettyHandler{out: output.New(w), level: slog.LevelInfo}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

// Enabled reports whether the handler handles records at the given level.
func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// levelStyle maps a level to its glyph and color. Info has no glyph.
func levelStyle(level slog.Level) (string, lipgloss.Color) {
	switch {
	case level >= slog.LevelError:
		return style.Cross + " ", style.Red
	case level >= slog.LevelWarn:
		return style.Warning + " ", style.Yellow
	case level < slog.LevelInfo:
		return style.Dot + " ", style.Slate
	default:
		return "", style.Slate
	}
}

// Handle formats and outputs the log record.
//
//nolint:gocritic // slog.Handler interface requires slog.Record by value
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	glyph, color := levelStyle(r.Level)

	var b strings.Builder
	b.WriteString(glyph)
	b.WriteString(r.Message)
	for _, attr := range h.attrs {
		b.WriteByte(' ')
		b.WriteString(formatAttr(h.group, attr))
	}
	r.Attrs(func(attr slog.Attr) bool {
		b.WriteByte(' ')
		b.WriteString(formatAttr(h.group, attr))
		return true
	})

	line := h.out.String(b.String()).Foreground(termenv.RGBColor(string(color)))
	_, err := h.out.WriteString(line.String() + "\n")
	return err
}

// WithAttrs returns a new Handler with the given attributes appended.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append(make([]slog.Attr, 0, len(h.attrs)+len(attrs)), h.attrs...), attrs...)
	return &clone
}

// WithGroup returns a new Handler with the given group name.
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.group = name
	return &clone
}

// formatAttr renders key=value. The key is prefixed with group, and values with
// spaces (compiler command lines, paths) are quoted.
func formatAttr(group string, attr slog.Attr) string {
	key := attr.Key
	if group != "" {
		key = group + "." + key
	}
	val := attr.Value.String()
	if strings.ContainsAny(val, " \t\n\"") {
		val = strconv.Quote(val)
	}
	return key + "=" + val
}
