package fs

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/stanza/internal/core/domain"
	"go.trai.ch/stanza/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.InputHasher = (*Hasher)(nil)

// Hasher fingerprints job input files.
type Hasher struct {
	walker   *Walker
	resolver *Resolver
}

// NewHasher creates a new Hasher.
func NewHasher(walker *Walker, resolver *Resolver) *Hasher {
	return &Hasher{walker: walker, resolver: resolver}
}

// ComputeFileHash computes the XXHash of a file's content.
func (h *Hasher) ComputeFileHash(path string) (uint64, error) {
	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrInputHashFailed.Error()), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	hasher := xxhash.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrInputHashFailed.Error()), "path", path)
	}

	return hasher.Sum64(), nil
}

// HashInputs computes one digest over the path and content of every file
// matched by patterns. Each file contributes once, in sorted path order.
func (h *Hasher) HashInputs(patterns []string) (string, error) {
	paths, err := h.resolver.ResolveInputs(patterns)
	if err != nil {
		return "", err
	}

	files := make(map[string]bool)
	ordered := make([]string, 0, len(paths))
	for _, path := range paths {
		if err := h.collect(path, files, &ordered); err != nil {
			return "", err
		}
	}

	digest := xxhash.New()
	for _, file := range ordered {
		if err := h.hashFile(file, digest); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%016x", digest.Sum64()), nil
}

func (h *Hasher) collect(path string, files map[string]bool, ordered *[]string) error {
	info, err := os.Stat(path)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrInputHashFailed.Error()), "path", path)
	}

	if !info.IsDir() {
		addFile(path, files, ordered)
		return nil
	}
	for file := range h.walker.WalkFiles(path, nil) {
		addFile(file, files, ordered)
	}
	return nil
}

func addFile(path string, files map[string]bool, ordered *[]string) {
	if files[path] {
		return
	}
	files[path] = true
	*ordered = append(*ordered, path)
}

func (h *Hasher) hashFile(path string, digest io.Writer) error {
	_, _ = io.WriteString(digest, filepath.ToSlash(path))
	_, _ = digest.Write([]byte{0})

	hash, err := h.ComputeFileHash(path)
	if err != nil {
		return err
	}

	if err := binary.Write(digest, binary.LittleEndian, hash); err != nil {
		return zerr.Wrap(err, "failed to write hash to digest")
	}
	return nil
}
