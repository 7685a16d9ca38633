package domain

// OutputMode selects the shape of the build output. It is a closed set:
// AssemblyMode and LibraryMode are the only implementations.
type OutputMode interface {
	// Name is the config spelling of the mode ("ptx" or "lib").
	Name() string
	// ArtifactKind is the per-source artifact the mode consumes.
	ArtifactKind() ArtifactKind
	isOutputMode()
}

// AssemblyMode writes one PTX file per kernel plus a generation descriptor.
type AssemblyMode struct {
	// Descriptor is the path of the generation descriptor.
	// Relative paths resolve against the output directory.
	Descriptor string
}

// Name implements OutputMode.
func (AssemblyMode) Name() string { return ModePTX }

// ArtifactKind implements OutputMode.
func (AssemblyMode) ArtifactKind() ArtifactKind { return ArtifactPTX }

func (AssemblyMode) isOutputMode() {}

// LibraryMode compiles every kernel to an object and archives them into one static library.
type LibraryMode struct {
	// Output is the path of the archive.
	// Relative paths resolve against the output directory.
	Output string
}

// Name implements OutputMode.
func (LibraryMode) Name() string { return ModeLib }

// ArtifactKind implements OutputMode.
func (LibraryMode) ArtifactKind() ArtifactKind { return ArtifactObject }

func (LibraryMode) isOutputMode() {}

const (
	// ModePTX is the config name of AssemblyMode.
	ModePTX = "ptx"
	// ModeLib is the config name of LibraryMode.
	ModeLib = "lib"
)

// ArchEncoding controls how several architectures map onto compiler invocations.
type ArchEncoding string

const (
	// EncodingAuto picks combined for objects and per-arch for multi-arch PTX.
	EncodingAuto ArchEncoding = "auto"
	// EncodingCombined passes every architecture to a single invocation.
	EncodingCombined ArchEncoding = "combined"
	// EncodingPerArch runs one invocation per architecture. It applies to PTX only.
	EncodingPerArch ArchEncoding = "per-arch"
)

// Resolve returns the concrete encoding for the given mode and arch set.
// Objects always embed every architecture in one fat binary, so only PTX honors per-arch.
// nvcc refuses --ptx for multiple architectures, so auto falls back to per-arch there.
func (e ArchEncoding) Resolve(mode OutputMode, archs ArchSet) ArchEncoding {
	if mode.ArtifactKind() == ArtifactObject {
		return EncodingCombined
	}
	if e != EncodingAuto && e != "" {
		return e
	}
	if len(archs) > 1 {
		return EncodingPerArch
	}
	return EncodingCombined
}

// HeaderPolicy controls whether header contents participate in change detection.
type HeaderPolicy string

const (
	// HeadersDirect hashes only the kernel file itself.
	HeadersDirect HeaderPolicy = "direct"
	// HeadersAll folds the hash of every collected header into each kernel.
	HeadersAll HeaderPolicy = "all-headers"
)
