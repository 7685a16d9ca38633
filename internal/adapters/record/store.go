// Package record persists the per-output-directory build record as JSON.
package record

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/kbuild/internal/core/domain"
	"go.trai.ch/kbuild/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.RecordStore = (*Store)(nil)

// Store implements ports.RecordStore with one JSON file per output directory.
type Store struct{}

// NewStore creates a new Store.
func NewStore() *Store {
	return &Store{}
}

// Load reads the record of outDir. A missing file or a record written by another
// schema version yields an empty record. Unknown fields are ignored.
func (s *Store) Load(outDir string) (*domain.BuildRecord, error) {
	path := domain.RecordPath(outDir)
	//nolint:gosec // Path is derived from the configured output directory
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.NewBuildRecord(), nil
		}
		return nil, domain.IOError(path, zerr.Wrap(err, "failed to read build record"))
	}

	var rec domain.BuildRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, domain.IOError(path, errors.Join(domain.ErrRecordCorrupt, err))
	}
	if rec.Version != domain.RecordVersion {
		return domain.NewBuildRecord(), nil
	}
	if rec.Entries == nil {
		rec.Entries = make(map[string]domain.RecordEntry)
	}
	return &rec, nil
}

// Save writes the record of outDir through a temporary file and a rename,
// so an interrupted build never leaves a truncated record behind.
func (s *Store) Save(outDir string, rec *domain.BuildRecord) error {
	path := domain.RecordPath(outDir)
	if rec == nil {
		rec = domain.NewBuildRecord()
	}
	rec.Version = domain.RecordVersion

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return domain.IOError(path, zerr.Wrap(err, "failed to encode build record"))
	}

	if err := os.MkdirAll(outDir, domain.DirPerm); err != nil {
		return domain.IOError(outDir, zerr.Wrap(err, "failed to create output directory"))
	}

	tmp, err := os.CreateTemp(outDir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return domain.IOError(path, zerr.Wrap(err, "failed to create temporary record"))
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return domain.IOError(path, zerr.Wrap(err, "failed to write build record"))
	}
	if err := tmp.Close(); err != nil {
		return domain.IOError(path, zerr.Wrap(err, "failed to write build record"))
	}
	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		return domain.IOError(path, zerr.Wrap(err, "failed to write build record"))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return domain.IOError(path, zerr.Wrap(err, "failed to replace build record"))
	}
	return nil
}
