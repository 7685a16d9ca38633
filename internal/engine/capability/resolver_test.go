package capability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/core/ports/mocks"
	"go.trai.ch/kbuild/internal/engine/capability"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
)

var allCodes = []string{"50", "52", "60", "70", "75", "80", "86", "89", "90", "90a"}

func setup(t *testing.T) (*capability.Resolver, *mocks.MockDeviceProber, *mocks.MockLogger) {
	t.Helper()
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockDeviceProber(ctrl)
	logger := mocks.NewMockLogger(ctrl)
	return capability.NewResolver(prober, logger), prober, logger
}

func TestResolve_ExplicitOverride(t *testing.T) {
	t.Parallel()

	r, prober, _ := setup(t)
	prober.EXPECT().SupportedArchs(gomock.Any(), "nvcc").Return(allCodes, nil)

	res, err := r.Resolve(context.Background(), domain.Config{Archs: []string{"86", "sm_75", "86"}}, "nvcc")
	require.NoError(t, err)
	assert.Equal(t, domain.ArchSet{"75", "86"}, res.Archs)
	assert.Equal(t, capability.OriginConfig, res.Origin)
	assert.Equal(t, "75,86 (from config)", res.Describe())
}

func TestResolve_EnvOverride(t *testing.T) {
	t.Parallel()

	r, prober, _ := setup(t)
	prober.EXPECT().SupportedArchs(gomock.Any(), "nvcc").Return(allCodes, nil)

	res, err := r.Resolve(context.Background(), domain.Config{EnvArchs: []string{"90a"}}, "nvcc")
	require.NoError(t, err)
	assert.Equal(t, domain.ArchSet{"90a"}, res.Archs)
	assert.Equal(t, capability.OriginEnv, res.Origin)
}

func TestResolve_InvalidOverride(t *testing.T) {
	t.Parallel()

	r, _, _ := setup(t)

	_, err := r.Resolve(context.Background(), domain.Config{Archs: []string{"sm_x"}}, "nvcc")
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrCapabilityResolution)
	assert.ErrorContains(t, err, domain.ErrInvalidArch.Error())
}

func TestResolve_Devices(t *testing.T) {
	t.Parallel()

	r, prober, _ := setup(t)
	gomock.InOrder(
		prober.EXPECT().ComputeCapabilities(gomock.Any()).Return([]string{"86", "75", "86"}, nil),
		prober.EXPECT().SupportedArchs(gomock.Any(), "/usr/local/cuda/bin/nvcc").Return(allCodes, nil),
	)

	res, err := r.Resolve(context.Background(), domain.Config{}, "/usr/local/cuda/bin/nvcc")
	require.NoError(t, err)
	assert.Equal(t, domain.ArchSet{"75", "86"}, res.Archs)
	assert.Equal(t, capability.OriginDevice, res.Origin)
}

func TestResolve_FallsBackToDefault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		caps []string
		err  error
	}{
		{name: "enumeration failed", err: zerr.New("nvidia-smi: not found")},
		{name: "no devices", caps: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, prober, logger := setup(t)
			prober.EXPECT().ComputeCapabilities(gomock.Any()).Return(tt.caps, tt.err)
			logger.EXPECT().Warn(gomock.Any())
			prober.EXPECT().SupportedArchs(gomock.Any(), "nvcc").Return(allCodes, nil)

			res, err := r.Resolve(context.Background(), domain.Config{}, "nvcc")
			require.NoError(t, err)
			assert.Equal(t, domain.ArchSet{domain.DefaultArch}, res.Archs)
			assert.Equal(t, capability.OriginDefault, res.Origin)
		})
	}
}

func TestResolve_UnsupportedArch(t *testing.T) {
	t.Parallel()

	r, prober, _ := setup(t)
	prober.EXPECT().SupportedArchs(gomock.Any(), "nvcc").Return([]string{"75", "80", "86"}, nil)

	_, err := r.Resolve(context.Background(), domain.Config{Archs: []string{"75", "90"}}, "nvcc")
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrCapabilityResolution)
	assert.ErrorContains(t, err, domain.ErrUnsupportedArch.Error())

	be, ok := domain.AsBuildError(err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"arch": "90", "supported": "75,80,86"}, zerrMetadata(be.Err))
}

func TestResolve_SupportQueryFailureSkipsCheck(t *testing.T) {
	t.Parallel()

	r, prober, logger := setup(t)
	prober.EXPECT().SupportedArchs(gomock.Any(), "nvcc").Return(nil, zerr.New("toolchain query failed"))
	logger.EXPECT().Warn(gomock.Any())

	res, err := r.Resolve(context.Background(), domain.Config{Archs: []string{"120"}}, "nvcc")
	require.NoError(t, err)
	assert.Equal(t, domain.ArchSet{"120"}, res.Archs)
	assert.Nil(t, res.Supported)
}

func zerrMetadata(err error) map[string]any {
	if m, ok := err.(interface{ Metadata() map[string]any }); ok {
		return m.Metadata()
	}
	return nil
}
