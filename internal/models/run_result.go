package models

import (
	"time"
)

// RunCounts is the per-kind tally reported at the end of a run.
type RunCounts struct {
	New        int `json:"new"`
	Changed    int `json:"changed"`
	Unchanged  int `json:"unchanged"`
	FetchError int `json:"fetch_error"`
	Degraded   int `json:"degraded"`
}

// Total returns the number of events counted.
func (c RunCounts) Total() int {
	return c.New + c.Changed + c.Unchanged + c.FetchError
}

// RunResult is everything one run hands to the feed renderer.
type RunResult struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Events     []ChangeEvent `json:"events"`
	Committed  bool          `json:"committed"`
	CommitErr  error         `json:"-"`
}

// Important returns the events of the important feed.
func (r *RunResult) Important() []ChangeEvent {
	var out []ChangeEvent
	for _, ev := range r.Events {
		if ev.Severity == SeverityImportant {
			out = append(out, ev)
		}
	}
	return out
}

// All returns the events of the all feed: every event except unchanged
// ones whose parse was clean.
func (r *RunResult) All() []ChangeEvent {
	var out []ChangeEvent
	for _, ev := range r.Events {
		if ev.Reportable() {
			out = append(out, ev)
		}
	}
	return out
}

// Counts tallies events by kind.
func (r *RunResult) Counts() RunCounts {
	var c RunCounts
	for _, ev := range r.Events {
		switch ev.Kind {
		case KindNew:
			c.New++
		case KindChanged:
			c.Changed++
		case KindUnchanged:
			c.Unchanged++
		case KindFetchError:
			c.FetchError++
		}
		if ev.Degraded {
			c.Degraded++
		}
	}
	return c
}

// Duration returns the wall-clock time of the run.
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
