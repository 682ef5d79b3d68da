package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/stanza/internal/core/domain"
)

func TestLoadJobs_Success(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "jobs.yaml", `
jobs:
  - name: summarize
    cmd: ["sh", "-c", "echo summary"]
    partition: db1
    params:
      topic: pricing
    env:
      MODEL: small
    dir: work
    inputs: ["data/*.csv", "/etc/hosts"]
    ttl: 10m
    retries: 1
  - name: aggregate
    cmd: ["echo", "total"]
    no_cache: true
`)
	defaults := domain.DefaultRetryPolicy()

	jobs, err := newLoader(t, nil).LoadJobs(path, defaults)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	first := jobs[0]
	assert.Equal(t, "summarize", first.Name)
	assert.Equal(t, []string{"sh", "-c", "echo summary"}, first.Command)
	assert.Equal(t, "db1", first.Partition)
	assert.Equal(t, map[string]string{"topic": "pricing"}, first.Params)
	assert.Equal(t, map[string]string{"MODEL": "small"}, first.Environment)
	assert.Equal(t, filepath.Join(dir, "work"), first.WorkingDir)
	assert.Equal(t, []string{filepath.Join(dir, "data", "*.csv"), "/etc/hosts"}, first.Inputs)
	require.NotNil(t, first.TTL)
	assert.Equal(t, 10*time.Minute, *first.TTL)
	assert.Equal(t, 1, first.Policy.MaxRetries)
	assert.Equal(t, defaults.InitialDelay, first.Policy.InitialDelay)
	assert.False(t, first.NoCache)

	second := jobs[1]
	assert.Equal(t, "aggregate", second.Name)
	assert.Nil(t, second.TTL)
	assert.Empty(t, second.WorkingDir)
	assert.Empty(t, second.Inputs)
	assert.Equal(t, defaults.MaxRetries, second.Policy.MaxRetries)
	assert.True(t, second.NoCache)
}

func TestLoadJobs_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "no jobs",
			content: "jobs: []\n",
			wantErr: domain.ErrJobfileInvalid,
		},
		{
			name:    "missing command",
			content: "jobs:\n  - name: a\n",
			wantErr: domain.ErrJobfileInvalid,
		},
		{
			name:    "empty argument",
			content: "jobs:\n  - name: a\n    cmd: [\"\"]\n",
			wantErr: domain.ErrJobfileInvalid,
		},
		{
			name:    "name with separator",
			content: "jobs:\n  - name: \"a:b\"\n    cmd: [echo]\n",
			wantErr: domain.ErrJobfileInvalid,
		},
		{
			name:    "empty input pattern",
			content: "jobs:\n  - name: a\n    cmd: [echo]\n    inputs: [\"\"]\n",
			wantErr: domain.ErrJobfileInvalid,
		},
		{
			name:    "negative retries",
			content: "jobs:\n  - name: a\n    cmd: [echo]\n    retries: -1\n",
			wantErr: domain.ErrJobfileInvalid,
		},
		{
			name:    "duplicate names",
			content: "jobs:\n  - name: a\n    cmd: [echo]\n  - name: a\n    cmd: [echo]\n",
			wantErr: domain.ErrDuplicateJobName,
		},
		{
			name:    "reserved param name",
			content: "jobs:\n  - name: a\n    cmd: [echo]\n    params:\n      \"@cmd\": x\n",
			wantErr: domain.ErrReservedParam,
		},
		{
			name:    "malformed yaml",
			content: "jobs: {",
			wantErr: domain.ErrConfigParseFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "jobs.yaml", tt.content)

			_, err := newLoader(t, nil).LoadJobs(path, domain.DefaultRetryPolicy())
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr.Error())
		})
	}
}

func TestLoadJobs_MissingFile(t *testing.T) {
	_, err := newLoader(t, nil).LoadJobs(filepath.Join(t.TempDir(), "missing.yaml"), domain.DefaultRetryPolicy())
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrConfigReadFailed.Error())
}
