package domain

import "path/filepath"

const (
	// StanzaDirName is the name of the internal workspace directory.
	StanzaDirName = ".stanza"

	// CacheFileName is the name of the cache database file.
	CacheFileName = "cache.db"

	// ConfigFileName is the name of the optional configuration file.
	ConfigFileName = "stanza.yaml"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750
)

// DefaultCachePath returns the default location of the cache database.
// It joins .stanza and cache.db.
func DefaultCachePath() string {
	return filepath.Join(StanzaDirName, CacheFileName)
}
