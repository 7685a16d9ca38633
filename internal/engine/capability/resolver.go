// Package capability determines which GPU architectures a build targets.
package capability

import (
	"context"
	"fmt"

	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/core/ports"
	"go.trai.ch/zerr"
)

// Origin names where a resolved architecture set came from.
type Origin string

const (
	// OriginConfig is the explicit archs option.
	OriginConfig Origin = "config"
	// OriginEnv is the CUDA_COMPUTE_CAP environment variable.
	OriginEnv Origin = "CUDA_COMPUTE_CAP"
	// OriginDevice is enumeration of the installed devices.
	OriginDevice Origin = "device"
	// OriginDefault is the builtin fallback.
	OriginDefault Origin = "default"
)

// Resolution is a resolved architecture set.
type Resolution struct {
	Archs  domain.ArchSet
	Origin Origin
	// Supported is what the toolchain reported it can target. Nil if the query failed.
	Supported domain.ArchSet
}

// Resolver determines the target architecture set.
type Resolver struct {
	prober ports.DeviceProber
	logger ports.Logger
}

// NewResolver creates a new Resolver.
func NewResolver(prober ports.DeviceProber, logger ports.Logger) *Resolver {
	return &Resolver{prober: prober, logger: logger}
}

// Resolve picks the explicit override, then the environment override, then the
// local devices, then DefaultArch. The result is checked against what compiler
// reports it can target when that query succeeds.
func (r *Resolver) Resolve(ctx context.Context, cfg domain.Config, compiler string) (Resolution, error) {
	res, err := r.pick(ctx, cfg)
	if err != nil {
		return Resolution{}, err
	}

	supported, err := r.prober.SupportedArchs(ctx, compiler)
	if err != nil {
		r.logger.Warn(fmt.Sprintf("skipping architecture check, %s --list-gpu-code failed: %v", compiler, err))
		return res, nil
	}
	res.Supported, err = domain.NewArchSet(supported)
	if err != nil {
		r.logger.Warn(fmt.Sprintf("skipping architecture check: %v", err))
		res.Supported = nil
		return res, nil
	}

	for _, arch := range res.Archs {
		if !res.Supported.Contains(arch) {
			return Resolution{}, &domain.BuildError{
				Kind: domain.ErrCapabilityResolution,
				Err: zerr.With(
					zerr.With(domain.ErrUnsupportedArch, "arch", arch),
					"supported", res.Supported.String(),
				),
			}
		}
	}
	return res, nil
}

func (r *Resolver) pick(ctx context.Context, cfg domain.Config) (Resolution, error) {
	// Config.Validate has already rejected disagreeing overrides.
	if len(cfg.Archs) > 0 {
		return explicit(cfg.Archs, OriginConfig)
	}
	if len(cfg.EnvArchs) > 0 {
		return explicit(cfg.EnvArchs, OriginEnv)
	}

	caps, err := r.prober.ComputeCapabilities(ctx)
	if err == nil && len(caps) > 0 {
		set, parseErr := domain.NewArchSet(caps)
		if parseErr == nil {
			return Resolution{Archs: set, Origin: OriginDevice}, nil
		}
		err = parseErr
	}

	reason := "no devices found"
	if err != nil {
		reason = err.Error()
	}
	r.logger.Warn(fmt.Sprintf("device enumeration unavailable (%s), targeting sm_%s", reason, domain.DefaultArch))
	return Resolution{Archs: domain.ArchSet{domain.DefaultArch}, Origin: OriginDefault}, nil
}

func explicit(codes []string, origin Origin) (Resolution, error) {
	set, err := domain.NewArchSet(codes)
	if err != nil {
		return Resolution{}, &domain.BuildError{Kind: domain.ErrCapabilityResolution, Err: err}
	}
	return Resolution{Archs: set, Origin: origin}, nil
}

// Describe renders a resolution for humans, e.g. "75,86 (from config)".
func (r Resolution) Describe() string {
	return fmt.Sprintf("%s (from %s)", r.Archs, r.Origin)
}
