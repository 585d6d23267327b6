package pipeline

import (
	"time"
)

// Status is the terminal state of one document's pipeline run.
type Status string

const (
	StatusSkipped   Status = "skipped"
	StatusSimulated Status = "simulated"
	StatusWritten   Status = "written"
	StatusFailed    Status = "failed"
)

// Result is the outcome of one document. Created once by a worker,
// consumed once by the coordinator, never mutated after creation.
type Result struct {
	Path      string    `json:"path"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Simulate-mode payload: the change that would have been committed.
	OldMeta map[string]any `json:"old_metadata,omitempty"`
	NewMeta map[string]any `json:"new_metadata,omitempty"`

	DateSource string `json:"date_source,omitempty"`
}

// Report aggregates all results of a pass. Assembled only after every
// dispatched document reached a terminal state.
type Report struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Results    []Result  `json:"results"`
}

// Count returns the number of results with the given status.
func (r *Report) Count(status Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Failed returns all failed results.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// Simulated returns all simulated results.
func (r *Report) Simulated() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusSimulated {
			out = append(out, res)
		}
	}
	return out
}

// DateSources returns a count of resolved date sources across results
// that carried one.
func (r *Report) DateSources() map[string]int {
	out := make(map[string]int)
	for _, res := range r.Results {
		if res.DateSource != "" {
			out[res.DateSource]++
		}
	}
	return out
}
