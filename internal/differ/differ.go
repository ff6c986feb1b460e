// Package differ decides whether a target changed since its stored state
// and prepares the candidate record for the batch commit.
package differ

import (
	"fmt"
	"strings"
	"time"

	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/rs/zerolog"
)

// Input is everything known about one target after fetch and
// normalization.
type Input struct {
	RunID    string
	Target   models.Target
	Fetch    models.FetchResult
	Snapshot *models.CanonicalSnapshot
	Prior    *models.StateRecord
	Now      time.Time
}

// Outcome is the differ's verdict for one target. Record is the candidate
// state to commit; nil means nothing is written for the target.
type Outcome struct {
	Event    models.ChangeEvent
	Record   *models.StateRecord
	Added    []string
	Previous string
	Current  string
}

// Finalize stores the classified event and appends it to the candidate's
// history when its kind is persisted.
func (o *Outcome) Finalize(ev models.ChangeEvent, historyLimit int) {
	o.Event = ev
	if o.Record != nil && ev.Kind.Persisted() {
		o.Record.AppendHistory(ev, historyLimit)
	}
}

// Differ compares fresh snapshots against stored state
type Differ struct {
	processor *DiffProcessor
	logger    zerolog.Logger
}

// Diff classifies the kind of change for one target. Fingerprint equality
// is the only equality test.
func (d *Differ) Diff(in Input) Outcome {
	ev := models.NewChangeEvent(in.RunID, in.Target, models.KindUnchanged, in.Now)
	now := in.Now.UTC()

	switch {
	case in.Fetch.Failed():
		ev.Kind = models.KindFetchError
		ev.Description = fmt.Sprintf("Fetch failed: %v", in.Fetch.Err)
		out := Outcome{Event: ev}
		if in.Prior != nil {
			out.Record = in.Prior.Clone()
			out.Record.LastChecked = now
			out.Previous = in.Prior.Snapshot
		}
		return out

	case in.Fetch.NotModified && in.Prior != nil:
		ev.Description = "Not modified since last check"
		rec := in.Prior.Clone()
		rec.LastChecked = now
		return Outcome{Event: ev, Record: rec, Previous: in.Prior.Snapshot, Current: in.Prior.Snapshot}

	case in.Snapshot == nil:
		ev.Kind = models.KindFetchError
		ev.Description = "Fetch failed: no document received"
		out := Outcome{Event: ev}
		if in.Prior != nil {
			out.Record = in.Prior.Clone()
			out.Record.LastChecked = now
		}
		return out

	case in.Prior == nil:
		ev.Kind = models.KindNew
		ev.Description = fmt.Sprintf("First snapshot recorded (%d lines)", countLines(in.Snapshot.Text))
		rec := models.NewStateRecord(in.Snapshot, now)
		setValidators(rec, in.Fetch)
		d.markDegraded(&ev, in.Snapshot)
		return Outcome{Event: ev, Record: rec, Added: splitLines(in.Snapshot.Text), Current: in.Snapshot.Text}

	case in.Prior.Fingerprint == in.Snapshot.Fingerprint:
		ev.Description = "No change"
		rec := in.Prior.Clone()
		rec.LastChecked = now
		setValidators(rec, in.Fetch)
		d.markDegraded(&ev, in.Snapshot)
		return Outcome{Event: ev, Record: rec, Previous: in.Prior.Snapshot, Current: in.Snapshot.Text}
	}

	lines := d.processor.ProcessDiff(in.Prior.Snapshot, in.Snapshot.Text)
	summary := d.processor.Summarize(lines)

	ev.Kind = models.KindChanged
	ev.Diff = summary
	ev.Description = describeChange(summary)
	d.markDegraded(&ev, in.Snapshot)

	rec := in.Prior.Clone()
	rec.ReplaceSnapshot(in.Snapshot)
	rec.LastChecked = now
	rec.LastChanged = now
	setValidators(rec, in.Fetch)

	d.logger.Debug().
		Str("target", in.Target.Key()).
		Int("added", summary.LinesAdded).
		Int("removed", summary.LinesRemoved).
		Msg("Content changed")

	return Outcome{
		Event:    ev,
		Record:   rec,
		Added:    lines.Added,
		Previous: in.Prior.Snapshot,
		Current:  in.Snapshot.Text,
	}
}

func (d *Differ) markDegraded(ev *models.ChangeEvent, snap *models.CanonicalSnapshot) {
	if !snap.Degraded {
		return
	}
	ev.Degraded = true
	ev.Description += fmt.Sprintf(" (parse-degraded: %s)", snap.DegradedReason)
}

func setValidators(rec *models.StateRecord, fetch models.FetchResult) {
	rec.ETag = fetch.ETag
	rec.LastModified = fetch.LastModified
}

func describeChange(s *models.DiffSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Content changed: %d lines added, %d removed", s.LinesAdded, s.LinesRemoved)
	for _, line := range s.Removed {
		b.WriteString("\n- " + line)
	}
	for _, line := range s.Added {
		b.WriteString("\n+ " + line)
	}
	if s.Truncated {
		b.WriteString("\n...")
	}
	return b.String()
}

func countLines(text string) int {
	return len(splitLines(text))
}
