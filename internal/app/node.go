package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kbuild/internal/adapters/config"  //nolint:depguard // Wired in app layer
	"go.trai.ch/kbuild/internal/adapters/fs"      //nolint:depguard // Wired in app layer
	"go.trai.ch/kbuild/internal/adapters/logger"  //nolint:depguard // Wired in app layer
	"go.trai.ch/kbuild/internal/adapters/nvidia"  //nolint:depguard // Wired in app layer
	"go.trai.ch/kbuild/internal/adapters/record"  //nolint:depguard // Wired in app layer
	"go.trai.ch/kbuild/internal/adapters/shell"   //nolint:depguard // Wired in app layer
	"go.trai.ch/kbuild/internal/adapters/watcher" //nolint:depguard // Wired in app layer
	"go.trai.ch/kbuild/internal/core/ports"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

// Components contains the initialized application components the CLI layer needs.
type Components struct {
	App    *App
	Logger ports.Logger
}

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			fs.CollectorNodeID,
			nvidia.ToolkitNodeID,
			nvidia.ProberNodeID,
			fs.HasherNodeID,
			fs.VerifierNodeID,
			shell.NodeID,
			record.NodeID,
			watcher.WatcherNodeID,
			logger.NodeID,
		},
		Run: runAppNode,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Components, error) {
			a, err := graft.Dep[*App](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return &Components{App: a, Logger: log}, nil
		},
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}

	collector, err := graft.Dep[ports.SourceCollector](ctx)
	if err != nil {
		return nil, err
	}

	toolchain, err := graft.Dep[ports.Toolchain](ctx)
	if err != nil {
		return nil, err
	}

	prober, err := graft.Dep[ports.DeviceProber](ctx)
	if err != nil {
		return nil, err
	}

	hasher, err := graft.Dep[ports.Hasher](ctx)
	if err != nil {
		return nil, err
	}

	verifier, err := graft.Dep[ports.Verifier](ctx)
	if err != nil {
		return nil, err
	}

	runner, err := graft.Dep[ports.Runner](ctx)
	if err != nil {
		return nil, err
	}

	store, err := graft.Dep[ports.RecordStore](ctx)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := graft.Dep[ports.Watcher](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	return New(loader, collector, toolchain, prober, hasher, verifier, runner, store, fsWatcher, log), nil
}
