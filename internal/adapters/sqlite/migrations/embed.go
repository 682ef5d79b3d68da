// Package migrations holds the embedded SQLite schema of the cache store.
package migrations

import "embed"

// FS contains embedded SQLite migrations for the cache store.
//
//go:embed *.sql
var FS embed.FS
