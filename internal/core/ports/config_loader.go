package ports

import "go.trai.ch/kbuild/internal/core/domain"

// ConfigLoader defines the interface for loading the build configuration.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads the configuration file at path.
	// Relative paths inside the file resolve against the file's directory.
	Load(path string) (domain.Config, error)
}
