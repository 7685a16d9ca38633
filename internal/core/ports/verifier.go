package ports

// Verifier checks artifact files on disk.
//
//go:generate mockgen -source=verifier.go -destination=mocks/mock_verifier.go -package=mocks
type Verifier interface {
	// Exists reports whether every path is present as a regular file.
	Exists(paths []string) (bool, error)
}
