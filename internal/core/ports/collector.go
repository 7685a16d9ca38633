package ports

import "go.trai.ch/kbuild/internal/core/domain"

// SourceCollector discovers kernel sources and headers.
//
//go:generate mockgen -source=collector.go -destination=mocks/mock_collector.go -package=mocks
type SourceCollector interface {
	// Collect walks every root and returns the recognized files, hashed and sorted by path.
	Collect(roots, kernelExts, headerExts []string) (domain.SourceSet, error)
}
