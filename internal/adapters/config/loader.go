// Package config provides the kbuild.yaml configuration loader.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

var _ ports.ConfigLoader = (*Loader)(nil)

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
	Getenv func(string) string
}

// NewLoader creates a new Loader with the given logger reading the process environment.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger, Getenv: os.Getenv}
}

// Load reads the configuration at path. A directory is searched for kbuild.yaml,
// walking up through its parents. Environment overrides are applied last.
func (l *Loader) Load(path string) (domain.Config, error) {
	configPath, err := l.findConfiguration(path)
	if err != nil {
		return domain.Config{}, err
	}

	var file File
	if err := readAndUnmarshalYAML(configPath, &file); err != nil {
		return domain.Config{}, domain.ConfigError(zerr.With(err, "path", configPath))
	}

	if file.Version != "" && file.Version != SupportedVersion {
		l.Logger.Warn(fmt.Sprintf("%s declares version %q, expected %q", configPath, file.Version, SupportedVersion))
	}

	cfg, err := toConfig(file, filepath.Dir(configPath))
	if err != nil {
		return domain.Config{}, err
	}

	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	return ApplyEnv(cfg, getenv)
}

func (l *Loader) findConfiguration(path string) (string, error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", domain.ConfigError(zerr.Wrap(err, "failed to get working directory"))
		}
		path = cwd
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", domain.ConfigError(zerr.With(domain.ErrConfigNotFound, "path", path))
		}
		return "", domain.ConfigError(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()))
	}
	if !info.IsDir() {
		return path, nil
	}

	currentDir, err := filepath.Abs(path)
	if err != nil {
		return "", domain.ConfigError(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()))
	}
	for {
		candidate := filepath.Join(currentDir, domain.ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}
	return "", domain.ConfigError(zerr.With(domain.ErrConfigNotFound, "cwd", path))
}

func toConfig(file File, baseDir string) (domain.Config, error) {
	cfg := domain.Config{
		SourceDirs:  resolvePaths(baseDir, file.Sources),
		IncludeDirs: resolvePaths(baseDir, file.Include),
		Defines:     file.Defines,
		OutputDir:   resolvePath(baseDir, file.Out),
		Compiler:    resolveTool(baseDir, file.Compiler),
		Archs:       file.Archs,
		ExtraFlags:  file.Flags,
		Archiver:    resolveTool(baseDir, file.Archiver),
		CCBin:       resolveTool(baseDir, file.CCBin),
		OptLevel:    strings.TrimPrefix(strings.TrimSpace(file.Optimize), "-O"),
		Parallelism: file.Jobs,
		Encoding:    domain.ArchEncoding(file.ArchEncoding),
		Headers:     domain.HeaderPolicy(file.Headers),
	}
	if file.Extensions != nil {
		cfg.KernelExts = file.Extensions.Kernel
		cfg.HeaderExts = file.Extensions.Header
	}

	mode, err := ParseMode(file.Mode, file.Descriptor, file.Library)
	if err != nil {
		return domain.Config{}, err
	}
	cfg.Mode = mode

	return cfg, nil
}

// ParseMode maps the config spelling of an output mode to its variant.
func ParseMode(name, descriptor, library string) (domain.OutputMode, error) {
	switch name {
	case "", domain.ModePTX:
		return domain.AssemblyMode{Descriptor: descriptor}, nil
	case domain.ModeLib:
		return domain.LibraryMode{Output: library}, nil
	default:
		return nil, domain.ConfigError(zerr.With(domain.ErrUnknownMode, "mode", name))
	}
}

func resolvePaths(baseDir string, paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = resolvePath(baseDir, p)
	}
	return out
}

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// resolveTool resolves tool paths that name a file, leaving bare names for PATH lookup.
func resolveTool(baseDir, tool string) string {
	if !strings.ContainsRune(tool, '/') && !strings.ContainsRune(tool, filepath.Separator) {
		return tool
	}
	return resolvePath(baseDir, tool)
}

func readAndUnmarshalYAML[T any](configPath string, target *T) error {
	// #nosec G304 -- configPath is validated by caller
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
	}

	if parseErr := yaml.Unmarshal(configFile, target); parseErr != nil {
		return zerr.Wrap(parseErr, domain.ErrConfigParseFailed.Error())
	}

	return nil
}
