// Package nvidia queries the local NVIDIA driver and CUDA toolkit.
package nvidia

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.DeviceProber = (*Prober)(nil)

// SMI is the device enumeration tool.
const SMI = "nvidia-smi"

// Prober implements ports.DeviceProber by running nvidia-smi and nvcc.
type Prober struct {
	runner ports.Runner
}

// NewProber creates a new Prober.
func NewProber(runner ports.Runner) *Prober {
	return &Prober{runner: runner}
}

// ComputeCapabilities lists the compute capability of every visible device.
func (p *Prober) ComputeCapabilities(ctx context.Context) ([]string, error) {
	cmd := domain.Command{
		Program: SMI,
		Args:    []string{"--query-gpu=compute_cap", "--format=csv,noheader"},
	}
	res, err := p.runner.Run(ctx, cmd, nil)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, zerr.With(zerr.With(zerr.New("device query failed"), "exit_code", res.ExitCode), "output",
			strings.TrimSpace(string(res.Output)))
	}

	caps, err := ParseComputeCaps(res.Stdout)
	if err != nil {
		return nil, err
	}
	if len(caps) == 0 {
		return nil, zerr.New("no devices reported")
	}
	return caps, nil
}

// SupportedArchs lists the real architectures compiler can generate code for.
func (p *Prober) SupportedArchs(ctx context.Context, compiler string) ([]string, error) {
	res, err := p.runner.Run(ctx, domain.Command{Program: compiler, Args: []string{"--list-gpu-code"}}, nil)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, zerr.With(zerr.New("toolchain query failed"), "exit_code", res.ExitCode)
	}

	codes := ParseGPUCodes(res.Stdout)
	if len(codes) == 0 {
		return nil, zerr.New("no gpu codes reported by compiler")
	}
	return codes, nil
}

// ParseComputeCaps converts nvidia-smi csv output ("8.6") into architecture codes ("86").
// A leading "compute_cap" header line is skipped. Duplicates are kept in first-seen order.
func ParseComputeCaps(out []byte) ([]string, error) {
	var caps []string
	seen := make(map[string]struct{})

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line == "compute_cap" {
			continue
		}
		code, err := domain.ParseArch(strings.ReplaceAll(line, ".", ""))
		if err != nil {
			return nil, err
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		caps = append(caps, code)
	}
	return caps, nil
}

// ParseGPUCodes extracts the sm_XX entries of `nvcc --list-gpu-code`.
// compute_XX (virtual) entries and unparsable lines are ignored.
func ParseGPUCodes(out []byte) []string {
	var codes []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "sm_") {
			continue
		}
		code, err := domain.ParseArch(line)
		if err != nil {
			continue
		}
		codes = append(codes, code)
	}
	return codes
}
