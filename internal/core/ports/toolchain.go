package ports

// Toolchain locates the CUDA toolkit and its compiler.
//
//go:generate mockgen -source=toolchain.go -destination=mocks/mock_toolchain.go -package=mocks
type Toolchain interface {
	// Compiler returns the compiler to run. A non-empty override is returned as is.
	Compiler(override string) string
	// Root returns the toolkit installation directory, or "" if none was found.
	Root() string
}
