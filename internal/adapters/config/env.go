package config

import (
	"strconv"
	"strings"

	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/zerr"
)

// Environment variables read on top of the config file.
const (
	EnvComputeCap = "CUDA_COMPUTE_CAP"
	EnvCCBin      = "NVCC_CCBIN"
	EnvJobs       = "KBUILD_JOBS"
)

// ApplyEnv fills cfg from the process environment.
// CUDA_COMPUTE_CAP is kept apart from the configured archs so the two can be checked
// for conflicts. NVCC_CCBIN applies only when no host compiler is configured.
// KBUILD_JOBS overrides the configured parallelism.
func ApplyEnv(cfg domain.Config, getenv func(string) string) (domain.Config, error) {
	if v := strings.TrimSpace(getenv(EnvComputeCap)); v != "" {
		cfg.EnvArchs = splitList(v)
	}
	if v := strings.TrimSpace(getenv(EnvCCBin)); v != "" && cfg.CCBin == "" {
		cfg.CCBin = v
	}
	if v := strings.TrimSpace(getenv(EnvJobs)); v != "" {
		jobs, err := strconv.Atoi(v)
		if err != nil || jobs < 0 {
			return cfg, domain.ConfigError(zerr.With(domain.ErrInvalidParallelism, EnvJobs, v))
		}
		cfg.Parallelism = jobs
	}
	return cfg, nil
}

func splitList(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
