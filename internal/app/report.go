package app

import (
	"go.trai.ch/stanza/internal/core/domain"
	"go.trai.ch/stanza/internal/engine/executor"
	"go.trai.ch/stanza/internal/engine/memo"
)

// JobOutcome is the result of one job of a run.
type JobOutcome struct {
	Name     string
	State    domain.TaskState
	Attempts int
	// Cached reports that the result was served from the cache without running the command.
	Cached bool
	Result domain.JobResult
	Err    error
}

// RunReport lists the outcome of every job in declaration order.
type RunReport struct {
	Jobs []JobOutcome
}

// Failed returns the number of jobs that did not complete.
func (r *RunReport) Failed() int {
	n := 0
	for _, j := range r.Jobs {
		if j.State != domain.StateCompleted {
			n++
		}
	}
	return n
}

// Cached returns the number of jobs served from the cache.
func (r *RunReport) Cached() int {
	n := 0
	for _, j := range r.Jobs {
		if j.Cached {
			n++
		}
	}
	return n
}

func buildRunReport(jobs []domain.Job, handles []*executor.Handle) *RunReport {
	report := &RunReport{Jobs: make([]JobOutcome, 0, len(handles))}
	for i, h := range handles {
		outcome := JobOutcome{
			Name:     jobs[i].Name,
			State:    h.State(),
			Attempts: h.Attempts(),
			Err:      h.Err(),
		}
		if res, ok := h.Value().(memo.Result[domain.JobResult]); ok {
			outcome.Cached = res.Cached
			outcome.Result = res.Value
		}
		report.Jobs = append(report.Jobs, outcome)
	}
	return report
}
