package ports

import "context"

// DeviceProber queries the local machine and the toolchain for architecture information.
//
//go:generate go run go.uber.org/mock/mockgen -source=device.go -destination=mocks/mock_device.go -package=mocks
type DeviceProber interface {
	// ComputeCapabilities returns the capability codes ("86") of the installed devices.
	// It returns an error when enumeration is unavailable.
	ComputeCapabilities(ctx context.Context) ([]string, error)

	// SupportedArchs returns the architecture codes the given compiler can target.
	SupportedArchs(ctx context.Context, compiler string) ([]string, error)
}
