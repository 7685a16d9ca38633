// Package app implements the application layer for kbuild.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/kbuild/internal/adapters/detector"  //nolint:depguard // Wired in app layer
	"go.trai.ch/kbuild/internal/adapters/linear"    //nolint:depguard // Wired in app layer
	"go.trai.ch/kbuild/internal/adapters/telemetry" //nolint:depguard // Wired in app layer
	"go.trai.ch/kbuild/internal/adapters/watcher"   //nolint:depguard // Wired in app layer
	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/core/ports"
	"go.trai.ch/kbuild/internal/engine/orchestrator"
	"go.trai.ch/kbuild/internal/ui/style"
	"go.trai.ch/zerr"
)

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	collector    ports.SourceCollector
	toolchain    ports.Toolchain
	prober       ports.DeviceProber
	hasher       ports.Hasher
	verifier     ports.Verifier
	runner       ports.Runner
	store        ports.RecordStore
	watcher      ports.Watcher
	logger       ports.Logger

	stdout io.Writer
	stderr io.Writer
	env    *detector.Environment
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	collector ports.SourceCollector,
	toolchain ports.Toolchain,
	prober ports.DeviceProber,
	hasher ports.Hasher,
	verifier ports.Verifier,
	runner ports.Runner,
	store ports.RecordStore,
	fsWatcher ports.Watcher,
	log ports.Logger,
) *App {
	return &App{
		configLoader: loader,
		collector:    collector,
		toolchain:    toolchain,
		prober:       prober,
		hasher:       hasher,
		verifier:     verifier,
		runner:       runner,
		store:        store,
		watcher:      fsWatcher,
		logger:       log,
		stdout:       os.Stdout,
		stderr:       os.Stderr,
	}
}

// WithOutput redirects progress and report output.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	return a
}

// WithEnvironment replaces terminal and CI detection.
// This is primarily used for testing.
func (a *App) WithEnvironment(env detector.Environment) *App {
	a.env = &env
	return a
}

// BuildOptions configuration for the Build and Watch methods.
type BuildOptions struct {
	// ConfigPath is a kbuild.yaml file or a directory to search upwards from.
	ConfigPath string
	// Mode overrides the configured output mode ("ptx" or "lib").
	Mode string
	// OutDir overrides the configured output directory.
	OutDir    string
	Force     bool
	LogFormat string
	Progress  string
	Verbose   bool
}

// configurable is implemented by loggers whose format can change at runtime.
type configurable interface {
	SetJSON(enable bool)
	SetVerbose(enable bool)
}

func (a *App) environment() detector.Environment {
	if a.env != nil {
		return *a.env
	}
	return detector.Current()
}

// session is one configured build context: the resolved config, the orchestrator
// and the tear-down of the progress output.
type session struct {
	cfg   domain.Config
	orch  *orchestrator.Orchestrator
	close func()
}

func (a *App) open(ctx context.Context, opts BuildOptions, progress bool) (*session, error) {
	env := a.environment()
	if l, ok := a.logger.(configurable); ok {
		l.SetJSON(detector.ResolveLogFormat(env.LogFormat(), opts.LogFormat) == detector.FormatJSON)
		l.SetVerbose(opts.Verbose)
	}

	cfg, err := a.loadConfig(opts)
	if err != nil {
		return nil, err
	}

	var (
		tracer ports.Tracer = telemetry.NewNoOpTracer()
		closer              = func() {}
	)
	if progress && detector.ResolveProgress(env.Progress(), opts.Progress) == detector.ModeLinear {
		renderer := linear.NewRenderer(a.stdout, a.stderr)
		if err := renderer.Start(ctx); err != nil {
			return nil, err
		}
		shutdown := telemetry.Install(renderer)
		tracer = telemetry.NewOTelTracer(telemetry.InstrumentationName).WithRenderer(renderer)
		closer = func() {
			_ = shutdown(context.WithoutCancel(ctx))
			_ = renderer.Stop()
		}
	}

	return &session{
		cfg:   cfg,
		orch:  a.orchestrator(tracer),
		close: closer,
	}, nil
}

func (a *App) orchestrator(tracer ports.Tracer) *orchestrator.Orchestrator {
	return orchestrator.New(
		a.collector,
		a.toolchain,
		a.prober,
		a.hasher,
		a.verifier,
		a.runner,
		a.store,
		tracer,
		a.logger,
	)
}

func (a *App) loadConfig(opts BuildOptions) (domain.Config, error) {
	cfg, err := a.configLoader.Load(opts.ConfigPath)
	if err != nil {
		if _, ok := domain.AsBuildError(err); ok {
			return domain.Config{}, err
		}
		return domain.Config{}, domain.ConfigError(zerr.Wrap(err, "failed to load configuration"))
	}

	switch opts.Mode {
	case "":
	case domain.ModePTX:
		if _, ok := cfg.Mode.(domain.AssemblyMode); !ok {
			cfg.Mode = domain.AssemblyMode{}
		}
	case domain.ModeLib:
		if _, ok := cfg.Mode.(domain.LibraryMode); !ok {
			cfg.Mode = domain.LibraryMode{}
		}
	default:
		return domain.Config{}, domain.ConfigError(zerr.With(domain.ErrUnknownMode, "mode", opts.Mode))
	}

	if opts.OutDir != "" {
		out, err := filepath.Abs(opts.OutDir)
		if err != nil {
			return domain.Config{}, domain.ConfigError(zerr.Wrap(err, "failed to resolve output directory"))
		}
		cfg.OutputDir = out
	}
	if opts.Force {
		cfg.Force = true
	}
	return cfg.WithDefaults(), nil
}

// Build runs one build pass.
func (a *App) Build(ctx context.Context, opts BuildOptions) (*domain.Result, error) {
	s, err := a.open(ctx, opts, true)
	if err != nil {
		return nil, err
	}
	defer s.close()

	res, err := s.orch.Build(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	a.report(res)
	return res, nil
}

func (a *App) report(res *domain.Result) {
	target := res.Descriptor
	if res.Archive != "" {
		target = res.Archive
	}
	if !res.Changed {
		a.logger.Info(fmt.Sprintf("%s is up to date (%d kernel(s))", target, res.Reused))
		return
	}
	a.logger.Info(fmt.Sprintf("wrote %s: %d compiled, %d reused", target, res.Compiled, res.Reused))
}

// Watch builds once and then rebuilds whenever a kernel or header below the
// source roots changes, until ctx is done. Build failures are logged and
// watching continues; configuration errors end the watch.
func (a *App) Watch(ctx context.Context, opts BuildOptions) error {
	s, err := a.open(ctx, opts, true)
	if err != nil {
		return err
	}
	defer s.close()

	build := func() error {
		res, err := s.orch.Build(ctx, s.cfg)
		if err != nil {
			if errors.Is(err, domain.ErrConfig) {
				return err
			}
			a.logger.Error(err)
			return nil
		}
		a.report(res)
		return nil
	}
	if err := build(); err != nil {
		return err
	}

	if err := a.watcher.Start(ctx, s.cfg.SourceDirs); err != nil {
		return zerr.Wrap(err, "failed to start watching")
	}
	defer func() { _ = a.watcher.Stop() }()

	debouncer := watcher.NewDebouncer(watcher.DefaultDebounceWindow)
	go func() {
		for event := range a.watcher.Events() {
			if relevant(s.cfg, event.Path) {
				debouncer.Add(event.Path)
			}
		}
	}()

	a.logger.Info("watching " + strings.Join(s.cfg.SourceDirs, ", "))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-debouncer.Ready():
			changed := debouncer.Take()
			if len(changed) == 0 {
				continue
			}
			a.logger.Info(fmt.Sprintf("%d file(s) changed, rebuilding", len(changed)))
			if err := build(); err != nil {
				return err
			}
		}
	}
}

// relevant reports whether a change to path can affect the build.
func relevant(cfg domain.Config, path string) bool {
	ext := filepath.Ext(path)
	if !slices.Contains(cfg.KernelExts, ext) && !slices.Contains(cfg.HeaderExts, ext) {
		return false
	}
	if out, err := filepath.Abs(cfg.OutputDir); err == nil {
		if rel, err := filepath.Rel(out, path); err == nil && !strings.HasPrefix(rel, "..") {
			return false
		}
	}
	return true
}

// Archs prints the architecture set a build would target.
func (a *App) Archs(ctx context.Context, opts BuildOptions) error {
	s, err := a.open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer s.close()

	res, err := s.orch.Resolve(ctx, s.cfg)
	if err != nil {
		return err
	}

	root := a.toolchain.Root()
	if root == "" {
		root = "not found"
	}
	supported := "unknown"
	if res.Supported != nil {
		supported = res.Supported.String()
	}

	w := a.stdout
	_, _ = fmt.Fprintln(w, style.Header("Target architectures"))
	_, _ = fmt.Fprintf(w, "  %-10s %s\n", "archs", res.Describe())
	_, _ = fmt.Fprintf(w, "  %-10s %s\n", "compiler", a.toolchain.Compiler(s.cfg.Compiler))
	_, _ = fmt.Fprintf(w, "  %-10s %s\n", "toolkit", root)
	_, _ = fmt.Fprintf(w, "  %-10s %s\n", "supported", supported)
	return nil
}

// CleanOptions configuration for the Clean method.
type CleanOptions struct {
	ConfigPath string
	OutDir     string
}

// Clean removes every artifact the build record owns, the descriptor or archive
// and the record itself.
func (a *App) Clean(_ context.Context, opts CleanOptions) error {
	cfg, err := a.loadConfig(BuildOptions{ConfigPath: opts.ConfigPath, OutDir: opts.OutDir})
	if err != nil {
		return err
	}
	outDir, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return domain.IOError(cfg.OutputDir, err)
	}

	var errs error
	remove := func(path string, removeAll bool) {
		var err error
		if removeAll {
			err = os.RemoveAll(path)
		} else {
			err = os.Remove(path)
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = errors.Join(errs, domain.IOError(path, zerr.Wrap(err, "failed to remove")))
			return
		}
		if err == nil {
			a.logger.Debug("removed " + path)
		}
	}

	rec, err := a.store.Load(outDir)
	if err != nil {
		a.logger.Warn("build record is unreadable, removing known outputs only")
		rec = domain.NewBuildRecord()
	}
	for _, path := range rec.Paths() {
		for _, f := range rec.Entries[path].ToArtifact(path).Files() {
			remove(f, false)
		}
	}
	if rec.Archive != nil {
		remove(rec.Archive.Path, false)
	}

	cfg.OutputDir = outDir
	remove(cfg.ModeOutputPath(), false)
	remove(domain.ObjectDir(outDir), true)
	remove(domain.RecordPath(outDir), false)

	if errs == nil {
		a.logger.Info("cleaned " + outDir)
	}
	return errs
}
