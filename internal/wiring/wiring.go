// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/kbuild/internal/adapters/config"
	_ "go.trai.ch/kbuild/internal/adapters/fs"
	_ "go.trai.ch/kbuild/internal/adapters/logger"
	_ "go.trai.ch/kbuild/internal/adapters/nvidia"
	_ "go.trai.ch/kbuild/internal/adapters/record"
	_ "go.trai.ch/kbuild/internal/adapters/shell"
	_ "go.trai.ch/kbuild/internal/adapters/watcher"
	// Register app nodes.
	_ "go.trai.ch/kbuild/internal/app"
)
