package ports

// InputHasher fingerprints the files a job reads.
//
//go:generate mockgen -source=hasher.go -destination=mocks/mock_hasher.go -package=mocks
type InputHasher interface {
	// HashInputs returns a digest of the files matched by patterns.
	// Directories are walked recursively. A pattern that matches nothing is an error.
	HashInputs(patterns []string) (string, error)
}
