package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// FetchResult is the raw outcome of fetching one target. It is never
// persisted.
type FetchResult struct {
	TargetID     string
	Body         []byte
	ContentType  string
	ETag         string
	LastModified string
	StatusCode   int
	NotModified  bool
	Err          error
	FetchedAt    time.Time
	Duration     time.Duration
}

// Failed reports whether the fetch produced no usable document.
func (r FetchResult) Failed() bool {
	return r.Err != nil
}

// CanonicalSnapshot is the normalized form of a fetched document.
type CanonicalSnapshot struct {
	TargetID       string
	Text           string
	Fingerprint    string
	Degraded       bool
	DegradedReason string
}

// NewCanonicalSnapshot is the only constructor of snapshots; it derives
// the fingerprint from the text.
func NewCanonicalSnapshot(targetID, text string) *CanonicalSnapshot {
	return &CanonicalSnapshot{
		TargetID:    targetID,
		Text:        text,
		Fingerprint: Fingerprint(text),
	}
}

// Fingerprint returns the lowercase hex SHA-256 of canonical text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
