// Package shell runs external tools with captured output and a filtered environment.
package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/core/ports"
	"go.trai.ch/zerr"
)

// Runner implements ports.Runner using os/exec.
type Runner struct {
	logger ports.Logger
}

// NewRunner creates a new Runner. Tool output is echoed to logger at debug level.
func NewRunner(logger ports.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run starts cmd, waits for it and returns its captured output.
func (r *Runner) Run(ctx context.Context, cmd domain.Command, stream io.Writer) (domain.ProcessResult, error) {
	if cmd.Program == "" {
		return domain.ProcessResult{}, errors.Join(domain.ErrProcessStart, zerr.New("empty command"))
	}

	env := resolveEnvironment(os.Environ(), cmd.Env)

	executable := cmd.Program
	if !filepath.IsAbs(executable) && !strings.ContainsRune(executable, filepath.Separator) {
		if lp, err := lookPath(executable, env); err == nil {
			executable = lp
		}
	}

	c := exec.CommandContext(ctx, executable, cmd.Args...) //nolint:gosec // command is built by the invoker
	if len(c.Args) > 0 {
		c.Args[0] = cmd.Program
	}
	c.Dir = cmd.Dir
	c.Env = env

	var (
		stdout, stderr bytes.Buffer
		combined       lockedBuffer
	)
	logOut := &logWriter{logger: r.logger}
	logErr := &logWriter{logger: r.logger}
	outs := []io.Writer{&stdout, &combined, logOut}
	errs := []io.Writer{&stderr, &combined, logErr}
	if stream != nil {
		sw := &syncWriter{w: stream}
		outs = append(outs, sw)
		errs = append(errs, sw)
	}
	c.Stdout = io.MultiWriter(outs...)
	c.Stderr = io.MultiWriter(errs...)

	if err := c.Start(); err != nil {
		return domain.ProcessResult{ExitCode: -1}, errors.Join(
			domain.ErrProcessStart,
			zerr.With(zerr.Wrap(err, "exec"), "program", cmd.Program),
		)
	}

	waitErr := c.Wait()
	_ = logOut.Close()
	_ = logErr.Close()

	result := domain.ProcessResult{
		Output: combined.Bytes(),
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			result.ExitCode = -1
			return result, zerr.With(zerr.Wrap(waitErr, "wait"), "program", cmd.Program)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, zerr.With(zerr.Wrap(ctxErr, "interrupted"), "program", cmd.Program)
	}
	return result, nil
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.buf.Bytes())
}

// syncWriter serializes the stdout and stderr copy goroutines onto one stream.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

type logWriter struct {
	logger ports.Logger
	buf    []byte
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	if w.logger == nil {
		return len(p), nil
	}
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.logLine(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *logWriter) Close() error {
	if len(w.buf) > 0 {
		w.logLine(w.buf)
		w.buf = nil
	}
	return nil
}

func (w *logWriter) logLine(line []byte) {
	msg := strings.TrimSuffix(string(line), "\r")
	if msg == "" {
		return
	}
	w.logger.Debug(msg)
}

// resolveEnvironment applies the command overrides on top of the inherited
// environment. The toolkit reads many variables of its own (CPATH, LIBRARY_PATH,
// CUDA_TOOLKIT_ROOT_DIR, the Windows system variables), so nothing is dropped.
// The result is sorted so identical inputs produce identical process environments.
func resolveEnvironment(sysEnv, overrides []string) []string {
	envMap := make(map[string]string, len(sysEnv)+len(overrides))
	for _, entry := range slices.Concat(sysEnv, overrides) {
		if k, v, ok := strings.Cut(entry, "="); ok {
			envMap[k] = v
		}
	}

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// lookPath searches for an executable in the PATH of env rather than of the current process.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if p, ok := strings.CutPrefix(e, "PATH="); ok {
			path = p
			break
		}
	}
	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		candidate := filepath.Join(dir, file)
		if err := findExecutable(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
