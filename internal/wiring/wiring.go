// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/stanza/internal/adapters/config"
	_ "go.trai.ch/stanza/internal/adapters/fs"
	_ "go.trai.ch/stanza/internal/adapters/logger"
	_ "go.trai.ch/stanza/internal/adapters/shell"
	_ "go.trai.ch/stanza/internal/adapters/sqlite"
	_ "go.trai.ch/stanza/internal/adapters/telemetry"
	// Register app and engine nodes.
	_ "go.trai.ch/stanza/internal/app"
	_ "go.trai.ch/stanza/internal/engine/retry"
)
