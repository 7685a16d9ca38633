package config

// File represents the structure of the kbuild.yaml configuration file.
type File struct {
	Version      string            `yaml:"version"`
	Sources      []string          `yaml:"sources"`
	Include      []string          `yaml:"include"`
	Defines      map[string]string `yaml:"defines"`
	Out          string            `yaml:"out"`
	Compiler     string            `yaml:"compiler"`
	Archs        []string          `yaml:"archs"`
	Flags        []string          `yaml:"flags"`
	Archiver     string            `yaml:"archiver"`
	CCBin        string            `yaml:"ccbin"`
	Mode         string            `yaml:"mode"`
	Library      string            `yaml:"library"`
	Descriptor   string            `yaml:"descriptor"`
	Optimize     string            `yaml:"optimize"`
	Jobs         int               `yaml:"jobs"`
	ArchEncoding string            `yaml:"arch_encoding"`
	Headers      string            `yaml:"headers"`
	Extensions   *ExtensionsDTO    `yaml:"extensions"`
}

// ExtensionsDTO overrides the recognized file extensions.
type ExtensionsDTO struct {
	Kernel []string `yaml:"kernel"`
	Header []string `yaml:"header"`
}

// SupportedVersion is the only schema version the loader understands.
const SupportedVersion = "1"
