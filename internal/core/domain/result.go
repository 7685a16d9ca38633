package domain

// Module is one entry of the generation descriptor.
type Module struct {
	// Name is the symbolic name downstream emitters bind the PTX text to.
	Name     string    `json:"name"`
	Source   string    `json:"source"`
	Path     string    `json:"path"`
	Variants []Variant `json:"variants,omitempty"`
}

// Descriptor maps symbolic module names to PTX artifact paths.
// Modules are ordered by source path.
type Descriptor struct {
	Modules []Module `json:"modules"`
}

// Result describes what a build produced.
type Result struct {
	Mode string
	// Artifacts are ordered lexicographically by source path.
	Artifacts []Artifact
	Archs     ArchSet
	// Descriptor is the generation descriptor path (assembly mode).
	Descriptor string
	// Archive is the static library path (library mode).
	Archive  string
	Compiled int
	Reused   int
	// Changed is false when the pass left every output untouched.
	Changed bool
}
