package models

import (
	"time"
)

// ChangeKind is the outcome of comparing a target against its state.
type ChangeKind string

const (
	KindNew        ChangeKind = "new"
	KindChanged    ChangeKind = "changed"
	KindUnchanged  ChangeKind = "unchanged"
	KindFetchError ChangeKind = "fetch-error"
)

// Persisted reports whether events of this kind enter a record's history.
func (k ChangeKind) Persisted() bool {
	return k == KindNew || k == KindChanged
}

// Severity decides which feed an event lands in.
type Severity string

const (
	SeverityImportant Severity = "important"
	SeverityRoutine   Severity = "routine"
	SeverityNone      Severity = "none"
)

// DiffSummary is a bounded line diff between two canonical texts.
type DiffSummary struct {
	LinesAdded   int      `json:"lines_added"`
	LinesRemoved int      `json:"lines_removed"`
	Added        []string `json:"added,omitempty"`
	Removed      []string `json:"removed,omitempty"`
	Truncated    bool     `json:"truncated,omitempty"`
}

// ChangeEvent is produced exactly once per target per run.
type ChangeEvent struct {
	ID          string       `json:"id"`
	RunID       string       `json:"run_id"`
	TargetID    string       `json:"target_id"`
	TargetName  string       `json:"target_name"`
	TargetURL   string       `json:"target_url"`
	Impact      Impact       `json:"impact,omitempty"`
	Kind        ChangeKind   `json:"kind"`
	Severity    Severity     `json:"severity"`
	Timestamp   time.Time    `json:"timestamp"`
	Description string       `json:"description,omitempty"`
	Degraded    bool         `json:"degraded,omitempty"`
	Diff        *DiffSummary `json:"diff,omitempty"`
}

// Reportable reports whether the event belongs in the all feed. An
// unchanged target is reported only while its parse stays degraded.
func (e ChangeEvent) Reportable() bool {
	return e.Kind != KindUnchanged || e.Degraded
}

// NewChangeEvent fills the target-derived fields of an event.
func NewChangeEvent(runID string, target Target, kind ChangeKind, at time.Time) ChangeEvent {
	return ChangeEvent{
		ID:         eventID(runID, target.Key()),
		RunID:      runID,
		TargetID:   target.Key(),
		TargetName: target.Name,
		TargetURL:  target.URL,
		Impact:     target.Impact,
		Kind:       kind,
		Timestamp:  at.UTC(),
	}
}

// eventID is unique per (run, target) because each run emits one event
// per target.
func eventID(runID, targetID string) string {
	return Fingerprint(runID + "\x00" + targetID)[:24]
}
