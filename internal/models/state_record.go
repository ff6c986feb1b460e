package models

import (
	"errors"
	"fmt"
	"time"
)

// DefaultHistoryLimit bounds the history kept per target.
const DefaultHistoryLimit = 50

// ErrFingerprintMismatch is returned when a record's fingerprint does not
// hash its snapshot.
var ErrFingerprintMismatch = errors.New("fingerprint does not match snapshot")

// StateRecord is the persisted state of one target.
type StateRecord struct {
	TargetID     string        `json:"target_id"`
	Snapshot     string        `json:"snapshot"`
	Fingerprint  string        `json:"fingerprint"`
	ETag         string        `json:"etag,omitempty"`
	LastModified string        `json:"last_modified,omitempty"`
	LastChecked  time.Time     `json:"last_checked"`
	LastChanged  time.Time     `json:"last_changed"`
	History      []ChangeEvent `json:"history,omitempty"`
}

// NewStateRecord creates the first record of a target from its snapshot.
func NewStateRecord(snap *CanonicalSnapshot, at time.Time) *StateRecord {
	return &StateRecord{
		TargetID:    snap.TargetID,
		Snapshot:    snap.Text,
		Fingerprint: snap.Fingerprint,
		LastChecked: at.UTC(),
		LastChanged: at.UTC(),
	}
}

// Clone returns a deep copy so candidates never alias loaded state.
func (r *StateRecord) Clone() *StateRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.History != nil {
		c.History = make([]ChangeEvent, len(r.History))
		copy(c.History, r.History)
	}
	return &c
}

// ReplaceSnapshot swaps in new canonical content. Snapshot and fingerprint
// always change together.
func (r *StateRecord) ReplaceSnapshot(snap *CanonicalSnapshot) {
	r.Snapshot = snap.Text
	r.Fingerprint = snap.Fingerprint
}

// AppendHistory appends an event and evicts the oldest entries beyond limit.
func (r *StateRecord) AppendHistory(ev ChangeEvent, limit int) {
	r.History = append(r.History, ev)
	r.TrimHistory(limit)
}

// TrimHistory keeps only the newest limit events. limit <= 0 uses the
// default.
func (r *StateRecord) TrimHistory(limit int) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if over := len(r.History) - limit; over > 0 {
		kept := make([]ChangeEvent, limit)
		copy(kept, r.History[over:])
		r.History = kept
	}
}

// Validate checks the invariants a store relies on.
func (r *StateRecord) Validate() error {
	if r.TargetID == "" {
		return fmt.Errorf("state record without target id")
	}
	if Fingerprint(r.Snapshot) != r.Fingerprint {
		return fmt.Errorf("target '%s': %w", r.TargetID, ErrFingerprintMismatch)
	}
	return nil
}
