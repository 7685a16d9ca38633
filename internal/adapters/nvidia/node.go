package nvidia

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kbuild/internal/adapters/shell"
	"go.trai.ch/kbuild/internal/core/ports"
)

const (
	// ProberNodeID is the unique identifier for the device prober Graft node.
	ProberNodeID graft.ID = "adapter.nvidia.prober"
	// ToolkitNodeID is the unique identifier for the toolkit locator Graft node.
	ToolkitNodeID graft.ID = "adapter.nvidia.toolkit"
)

func init() {
	graft.Register(graft.Node[ports.DeviceProber]{
		ID:        ProberNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{shell.NodeID},
		Run: func(ctx context.Context) (ports.DeviceProber, error) {
			runner, err := graft.Dep[ports.Runner](ctx)
			if err != nil {
				return nil, err
			}
			return NewProber(runner), nil
		},
	})

	graft.Register(graft.Node[ports.Toolchain]{
		ID:        ToolkitNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Toolchain, error) {
			return NewToolkit(), nil
		},
	})
}
