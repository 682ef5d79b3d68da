package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"slices"
	"strings"
	"time"

	"go.trai.ch/zerr"
)

const migrationTable = "schema_migrations"

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

// applyMigrations executes the embedded .sql files in name order, each at most once.
// Every file runs in its own transaction together with its bookkeeping row.
func applyMigrations(ctx context.Context, db *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return zerr.Wrap(err, "failed to read migrations")
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	slices.Sort(files)

	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return zerr.Wrap(err, "failed to create migration table")
	}

	for _, file := range files {
		if err := applyMigration(ctx, db, migrationFS, file); err != nil {
			return zerr.With(err, "migration", file)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, migrationFS fs.FS, file string) error {
	applied, err := isApplied(ctx, db, file)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	content, err := fs.ReadFile(migrationFS, file)
	if err != nil {
		return zerr.Wrap(err, "failed to read migration")
	}
	up := extractUp(string(content))
	if strings.TrimSpace(up) == "" {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return zerr.Wrap(err, "failed to begin migration")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, up); err != nil {
		return zerr.Wrap(err, "failed to execute migration")
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO "+migrationTable+" (name, applied_at) VALUES (?, ?)",
		file, time.Now().UTC().UnixMilli(),
	); err != nil {
		return zerr.Wrap(err, "failed to record migration")
	}
	if err := tx.Commit(); err != nil {
		return zerr.Wrap(err, "failed to commit migration")
	}
	return nil
}

// extractUp returns the SQL between the Up and Down markers.
// A file without markers is applied whole.
func extractUp(content string) string {
	upIdx := strings.Index(content, upMarker)
	if upIdx == -1 {
		return content
	}
	rest := content[upIdx+len(upMarker):]
	if downIdx := strings.Index(rest, downMarker); downIdx != -1 {
		return rest[:downIdx]
	}
	return rest
}

func isApplied(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var found int
	err := db.QueryRowContext(ctx, "SELECT 1 FROM "+migrationTable+" WHERE name = ?", name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, zerr.Wrap(err, "failed to check migration")
	}
	return true, nil
}
