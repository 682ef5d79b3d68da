package ports

import "go.trai.ch/stanza/internal/core/domain"

// ConfigLoader defines the interface for loading configuration and jobfiles.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads the configuration from the given working directory.
	Load(cwd string) (*domain.Config, error)
	// LoadJobs reads a jobfile and returns its jobs in declaration order.
	LoadJobs(path string, defaults domain.RetryPolicy) ([]domain.Job, error)
}
