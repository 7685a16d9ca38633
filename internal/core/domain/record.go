package domain

import (
	"maps"
	"slices"
)

// RecordVersion is the schema version written into new build records.
const RecordVersion = 1

// RecordEntry is what the previous pass knew about one source.
type RecordEntry struct {
	Hash        string       `json:"hash"`
	Archs       ArchSet      `json:"archs"`
	Fingerprint string       `json:"flags"`
	Kind        ArtifactKind `json:"kind"`
	Artifact    string       `json:"artifact"`
	Variants    []Variant    `json:"variants,omitempty"`
}

// ArchiveRecord describes the archive written by the previous library-mode pass.
type ArchiveRecord struct {
	Path    string   `json:"path"`
	Members []string `json:"members"`
}

// BuildRecord maps canonical source paths to the state of their last successful compile.
// It is scoped to one output directory, loaded before dispatch and saved after the join.
type BuildRecord struct {
	Version int                    `json:"version"`
	Entries map[string]RecordEntry `json:"entries"`
	Archive *ArchiveRecord         `json:"archive,omitempty"`
}

// NewBuildRecord returns an empty record.
func NewBuildRecord() *BuildRecord {
	return &BuildRecord{
		Version: RecordVersion,
		Entries: make(map[string]RecordEntry),
	}
}

// Get returns the entry for path.
func (r *BuildRecord) Get(path string) (RecordEntry, bool) {
	if r == nil || r.Entries == nil {
		return RecordEntry{}, false
	}
	e, ok := r.Entries[path]
	return e, ok
}

// Put stores the entry for path, replacing any previous one.
func (r *BuildRecord) Put(path string, entry RecordEntry) {
	if r.Entries == nil {
		r.Entries = make(map[string]RecordEntry)
	}
	r.Entries[path] = entry
}

// Paths returns the recorded source paths in lexicographic order.
func (r *BuildRecord) Paths() []string {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.Entries))
}

// Prune drops every entry whose path is not in keep and returns the dropped entries.
func (r *BuildRecord) Prune(keep map[string]struct{}) []RecordEntry {
	var dropped []RecordEntry
	for _, path := range r.Paths() {
		if _, ok := keep[path]; ok {
			continue
		}
		dropped = append(dropped, r.Entries[path])
		delete(r.Entries, path)
	}
	return dropped
}

// EntryFor builds the record entry describing an artifact compiled from unit.
func EntryFor(unit CompileUnit, artifact Artifact) RecordEntry {
	return RecordEntry{
		Hash:        unit.Source.Hash,
		Archs:       unit.Archs,
		Fingerprint: unit.Fingerprint,
		Kind:        artifact.Kind,
		Artifact:    artifact.Path,
		Variants:    artifact.Variants,
	}
}

// ToArtifact reconstructs the artifact an entry refers to.
func (e RecordEntry) ToArtifact(source string) Artifact {
	return Artifact{
		Source:   source,
		Kind:     e.Kind,
		Path:     e.Artifact,
		Variants: e.Variants,
		Reused:   true,
	}
}
