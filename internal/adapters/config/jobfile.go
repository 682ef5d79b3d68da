package config

import (
	"path/filepath"

	"go.trai.ch/stanza/internal/core/domain"
	"go.trai.ch/zerr"
)

// LoadJobs reads the jobfile at path and returns its jobs in declaration order.
// Jobs without their own retry count use the defaults policy. Relative working
// directories and input patterns resolve against the jobfile's directory.
func (l *Loader) LoadJobs(path string, defaults domain.RetryPolicy) ([]domain.Job, error) {
	var file Jobfile
	if err := readAndUnmarshalYAML(path, &file); err != nil {
		return nil, err
	}

	if err := l.validate.Struct(&file); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrJobfileInvalid.Error()), "path", path)
	}

	root := filepath.Dir(path)
	seen := make(map[string]bool, len(file.Jobs))
	jobs := make([]domain.Job, 0, len(file.Jobs))
	for i := range file.Jobs {
		dto := &file.Jobs[i]
		if seen[dto.Name] {
			return nil, zerr.With(domain.ErrDuplicateJobName, "job", dto.Name)
		}
		seen[dto.Name] = true

		job := buildJob(dto, root, defaults)
		if name, ok := job.ReservedParam(); ok {
			return nil, zerr.With(zerr.With(domain.ErrReservedParam, "job", dto.Name), "param", name)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func buildJob(dto *JobDTO, root string, defaults domain.RetryPolicy) domain.Job {
	policy := defaults
	if dto.Retries != nil {
		policy.MaxRetries = *dto.Retries
	}

	workingDir := dto.WorkingDir
	if workingDir != "" && !filepath.IsAbs(workingDir) {
		workingDir = filepath.Join(root, workingDir)
	}

	inputs := make([]string, 0, len(dto.Inputs))
	for _, pattern := range dto.Inputs {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(root, pattern)
		}
		inputs = append(inputs, pattern)
	}

	return domain.Job{
		Name:        dto.Name,
		Command:     dto.Cmd,
		Partition:   dto.Partition,
		Params:      dto.Params,
		Environment: dto.Environment,
		WorkingDir:  workingDir,
		Inputs:      inputs,
		TTL:         dto.TTL,
		Policy:      policy,
		NoCache:     dto.NoCache,
	}
}
