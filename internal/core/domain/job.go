package domain

import (
	"strings"
	"time"
)

// ReservedParamPrefix starts the names of key parameters derived from the job
// definition itself. Declared params must not use it.
const ReservedParamPrefix = "@"

// Job is one shell command declared in a jobfile.
type Job struct {
	// Name identifies the job and is the operation name of its cache key.
	Name string
	// Command is the argv of the command to run.
	Command []string
	// Partition scopes the cache key, typically a dataset or database identifier.
	Partition string
	// Params are extra inputs folded into the cache key.
	Params map[string]string
	// Environment holds extra environment variables for the command.
	Environment map[string]string
	// WorkingDir is the directory the command runs in. Empty means the current directory.
	WorkingDir string
	// Inputs are file glob patterns whose contents the result depends on.
	Inputs []string
	// InputDigest fingerprints the contents of Inputs. Empty when not computed.
	InputDigest string
	// TTL bounds how long a cached result stays valid. Nil means forever.
	TTL *time.Duration
	// Policy is the retry policy for the command.
	Policy RetryPolicy
	// NoCache forces the command to run and skips storing its output.
	NoCache bool
}

// KeyParams returns the parameters the job's result depends on: its declared
// params plus its command, environment, working directory and input digest.
func (j *Job) KeyParams() map[string]any {
	params := make(map[string]any, len(j.Params)+4)
	for k, v := range j.Params {
		params[k] = v
	}
	params["@cmd"] = j.Command
	params["@env"] = j.Environment
	params["@dir"] = j.WorkingDir
	if j.InputDigest != "" {
		params["@inputs"] = j.InputDigest
	}
	return params
}

// Key returns the cache key of the job.
func (j *Job) Key() (CacheKey, error) {
	return DeriveKey(j.Name, j.Partition, j.KeyParams())
}

// JobResult is the captured output of a successful job run.
type JobResult struct {
	Stdout   string    `cbor:"1,keyasint"`
	Stderr   string    `cbor:"2,keyasint"`
	Finished time.Time `cbor:"3,keyasint"`
}

// ReservedParam returns the first declared param name that uses ReservedParamPrefix.
func (j *Job) ReservedParam() (string, bool) {
	for k := range j.Params {
		if strings.HasPrefix(k, ReservedParamPrefix) {
			return k, true
		}
	}
	return "", false
}
