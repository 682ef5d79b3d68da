// Package shell provides the shell command runner adapter.
package shell

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/stanza/internal/core/domain"
	"go.trai.ch/stanza/internal/core/ports"
	"go.trai.ch/zerr"
)

// Runner implements ports.CommandRunner using os/exec.
type Runner struct {
	logger ports.Logger
}

// NewRunner creates a new Runner.
func NewRunner(logger ports.Logger) *Runner {
	return &Runner{
		logger: logger,
	}
}

// Run executes the job's command and streams its output to stdout and stderr.
// The environment is os.Environ() overlaid with job.Environment.
//
// A non-zero exit is a transient failure. A command that cannot be started is
// fatal. Cancelling ctx kills the process and yields a cancellation error.
func (r *Runner) Run(ctx context.Context, job *domain.Job, stdout, stderr io.Writer) error {
	if len(job.Command) == 0 {
		return domain.Fatal(zerr.With(domain.ErrCommandFailed, "reason", "empty command"))
	}

	name := job.Command[0]
	args := job.Command[1:]

	cmdEnv := resolveEnvironment(os.Environ(), job.Environment)

	// Resolve the executable using the job's PATH rather than the process PATH.
	executable := name
	if !filepath.IsAbs(name) && !strings.ContainsRune(name, os.PathSeparator) {
		if lp, err := lookPath(name, cmdEnv); err == nil {
			executable = lp
		}
	}

	cmd := exec.CommandContext(ctx, executable, args...) //nolint:gosec // user provided command

	// exec.CommandContext sets Args[0] to the executable path; keep the name as invoked.
	if len(cmd.Args) > 0 {
		cmd.Args[0] = name
	}
	if job.WorkingDir != "" {
		cmd.Dir = job.WorkingDir
	}
	cmd.Env = cmdEnv
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r.logger.Debug("running command", "job", job.Name, "command", strings.Join(job.Command, " "))

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.Cancelled(ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return domain.Transient(zerr.With(
			zerr.With(domain.ErrCommandFailed, "exit_code", exitErr.ExitCode()),
			"job", job.Name,
		))
	}
	return domain.Fatal(zerr.With(zerr.Wrap(err, domain.ErrCommandFailed.Error()), "job", job.Name))
}

// resolveEnvironment overlays the job environment on the system environment.
// The result is sorted so the child sees a deterministic environment.
func resolveEnvironment(sysEnv []string, jobEnv map[string]string) []string {
	envMap := make(map[string]string, len(sysEnv)+len(jobEnv))
	for _, entry := range sysEnv {
		if k, v, ok := strings.Cut(entry, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range jobEnv {
		envMap[k] = v
	}

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// lookPath searches for an executable in the directories named by the PATH entry of env.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			path = strings.TrimPrefix(e, "PATH=")
			break
		}
	}

	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		path := filepath.Join(dir, file)
		if err := findExecutable(path); err == nil {
			return path, nil
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
