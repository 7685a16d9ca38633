package ports

import "go.trai.ch/kbuild/internal/core/domain"

// RecordStore loads and saves the build record of an output directory.
//
//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type RecordStore interface {
	// Load reads the record for outDir.
	// A missing record yields an empty one, not an error.
	Load(outDir string) (*domain.BuildRecord, error)

	// Save writes the record for outDir atomically.
	Save(outDir string, record *domain.BuildRecord) error
}
