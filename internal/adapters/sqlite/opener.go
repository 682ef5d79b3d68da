package sqlite

import (
	"context"

	"go.trai.ch/stanza/internal/core/ports"
)

// Opener implements ports.StoreOpener for SQLite files.
type Opener struct{}

// Open opens the store at path.
func (Opener) Open(ctx context.Context, path string) (ports.EntryStore, error) {
	store, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return store, nil
}
