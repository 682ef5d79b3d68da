package fs

import (
	"path/filepath"
	"slices"

	"go.trai.ch/stanza/internal/core/domain"
	"go.trai.ch/zerr"
)

// Resolver expands input patterns into concrete paths using filepath.Glob.
type Resolver struct{}

// NewResolver creates a new Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// ResolveInputs returns the sorted, deduplicated paths matched by patterns.
// A pattern that matches nothing fails with domain.ErrInputNotFound.
func (r *Resolver) ResolveInputs(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to glob path"), "pattern", pattern)
		}
		if len(matches) == 0 {
			return nil, zerr.With(domain.ErrInputNotFound, "pattern", pattern)
		}
		for _, match := range matches {
			seen[filepath.Clean(match)] = true
		}
	}

	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths, nil
}
