// Package linear renders build progress as chronological, prefixed lines.
package linear

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/muesli/termenv"
	"go.trai.ch/kbuild/internal/core/ports"
	"go.trai.ch/kbuild/internal/ui/output"
	"go.trai.ch/kbuild/internal/ui/style"
)

var _ ports.Renderer = (*Renderer)(nil)

// Renderer implements ports.Renderer for terminals and CI logs.
// Status lines go to stderr, tool output goes to stdout prefixed with the step name.
type Renderer struct {
	stdout io.Writer
	stderr io.Writer
	output *termenv.Output

	mu    sync.Mutex
	steps map[string]*step
}

type step struct {
	name    string
	started time.Time
	partial bytes.Buffer
}

// NewRenderer creates a new Renderer. Nil writers default to the process streams.
func NewRenderer(stdout, stderr io.Writer) *Renderer {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Renderer{
		stdout: stdout,
		stderr: stderr,
		output: output.NewWithProfile(stderr, output.ColorProfileANSI),
		steps:  make(map[string]*step),
	}
}

// Start is a no-op.
func (r *Renderer) Start(_ context.Context) error {
	return nil
}

// Stop flushes the partial lines of steps that never completed.
func (r *Renderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.steps {
		r.flushLocked(s)
	}
	return nil
}

// OnPlanEmit prints how many kernels compile and how many are reused.
func (r *Renderer) OnPlanEmit(compile, reuse []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.stderr, "Compiling %d kernel(s), %d up to date\n", len(compile), len(reuse))
}

// OnTaskStart registers a step.
func (r *Renderer) OnTaskStart(spanID, _, name string, startTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.steps[spanID] = &step{name: name, started: startTime}

	prefix := r.output.String(fmt.Sprintf("[%s]", name)).Faint().String()
	_, _ = fmt.Fprintf(r.stderr, "%s Starting...\n", prefix)
}

// OnTaskLog prints every complete line of data with the step prefix.
// A trailing partial line is held until more data arrives or the step completes.
func (r *Renderer) OnTaskLog(spanID string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.steps[spanID]
	if !ok {
		return
	}

	s.partial.Write(data)
	for {
		i := bytes.IndexByte(s.partial.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := s.partial.Next(i + 1)
		r.printLineLocked(s.name, line)
	}
}

// OnTaskComplete flushes the step and prints its outcome.
func (r *Renderer) OnTaskComplete(spanID string, endTime time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.steps[spanID]
	if !ok {
		return
	}
	r.flushLocked(s)
	delete(r.steps, spanID)

	duration := endTime.Sub(s.started).Round(time.Millisecond)
	prefix := fmt.Sprintf("[%s]", s.name)

	if err != nil {
		symbol := r.output.String(style.Cross).Foreground(termenv.ANSIRed).String()
		_, _ = fmt.Fprintf(r.stderr, "%s %s Failed after %v: %v\n", prefix, symbol, duration, err)
		return
	}
	symbol := r.output.String(style.Check).Foreground(termenv.ANSIGreen).String()
	_, _ = fmt.Fprintf(r.stderr, "%s %s Completed in %v\n", prefix, symbol, duration)
}

// flushLocked must be called with r.mu held.
func (r *Renderer) flushLocked(s *step) {
	if s.partial.Len() > 0 {
		r.printLineLocked(s.name, s.partial.Bytes())
		s.partial.Reset()
	}
}

// printLineLocked must be called with r.mu held.
func (r *Renderer) printLineLocked(name string, line []byte) {
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) == 0 {
		return
	}
	_, _ = fmt.Fprintf(r.stdout, "[%s] %s\n", name, line)
}
