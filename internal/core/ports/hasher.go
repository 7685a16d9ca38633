package ports

// Hasher defines the interface for computing hashes.
//
//go:generate mockgen -source=hasher.go -destination=mocks/mock_hasher.go -package=mocks
type Hasher interface {
	// ComputeFileHash hashes a file's content.
	ComputeFileHash(path string) (string, error)

	// ComputeStringsHash hashes an ordered list of strings.
	ComputeStringsHash(parts []string) string
}
