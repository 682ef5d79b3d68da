package executor

import (
	"errors"

	"go.trai.ch/stanza/internal/core/domain"
)

// Failure pairs a failed or cancelled handle with its error.
type Failure struct {
	Handle *Handle
	Err    error
}

// Report aggregates terminal handles ordered by submission.
// Results and Errors are disjoint; Pending holds handles that were still
// running when a partial wait was interrupted.
type Report struct {
	Results []*Handle
	Errors  []Failure
	Pending []*Handle
}

// Values returns the results of the completed handles in submission order.
func (r Report) Values() []any {
	values := make([]any, len(r.Results))
	for i, h := range r.Results {
		values[i] = h.Value()
	}
	return values
}

// Cancelled returns the number of failures caused by cancellation.
func (r Report) Cancelled() int {
	n := 0
	for _, f := range r.Errors {
		if f.Handle.State() == domain.StateCancelled {
			n++
		}
	}
	return n
}

// Err joins the errors of all failed handles, or returns nil if every handle completed.
func (r Report) Err() error {
	errs := make([]error, 0, len(r.Errors))
	for _, f := range r.Errors {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

func buildReport(handles []*Handle) Report {
	var rep Report
	for _, h := range handles {
		switch h.State() {
		case domain.StateCompleted:
			rep.Results = append(rep.Results, h)
		case domain.StateFailed, domain.StateCancelled:
			rep.Errors = append(rep.Errors, Failure{Handle: h, Err: h.Err()})
		default:
			rep.Pending = append(rep.Pending, h)
		}
	}
	return rep
}
