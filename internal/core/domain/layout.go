package domain

import "path/filepath"

const (
	// RecordFileName is the name of the build record inside the output directory.
	RecordFileName = ".kbuild-record.json"

	// ObjectDirName is the output subdirectory holding object files in library mode.
	ObjectDirName = "obj"

	// ConfigFileName is the name of the project configuration file.
	ConfigFileName = "kbuild.yaml"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644

	// PrivateFilePerm is the default permission for private files (rw-------).
	PrivateFilePerm = 0o600
)

// RecordPath returns the build record path for an output directory.
func RecordPath(outDir string) string {
	return filepath.Join(outDir, RecordFileName)
}

// ObjectDir returns the object directory for an output directory.
func ObjectDir(outDir string) string {
	return filepath.Join(outDir, ObjectDirName)
}

// ArtifactPath returns where the artifact of a kernel with the given stem is written.
// PTX sits directly in the output directory, objects go to the object directory.
func ArtifactPath(outDir, stem string, kind ArtifactKind) string {
	if kind == ArtifactObject {
		return filepath.Join(ObjectDir(outDir), stem+kind.Ext())
	}
	return filepath.Join(outDir, stem+kind.Ext())
}

// VariantPath returns the per-architecture PTX path "<stem>.sm_<arch>.ptx".
func VariantPath(outDir, stem, arch string) string {
	return filepath.Join(outDir, stem+".sm_"+arch+ArtifactPTX.Ext())
}
