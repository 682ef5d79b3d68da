// Package ports defines the core interfaces for the application.
package ports

import (
	"context"
	"io"

	"go.trai.ch/stanza/internal/core/domain"
)

// CommandRunner defines the interface for running a job's shell command.
//
//go:generate mockgen -source=executor.go -destination=mocks/mock_executor.go -package=mocks
type CommandRunner interface {
	// Run executes the job's command, writing its output to stdout and stderr.
	//
	// It returns an error if the command cannot start or exits unsuccessfully.
	Run(ctx context.Context, job *domain.Job, stdout, stderr io.Writer) error
}
