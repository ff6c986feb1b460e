package models

import "time"

// UnixNanoToTimeOptional converts an optional int64 (Unix nanoseconds) to time.Time.
// If the input pointer is nil, it returns a zero time.Time value.
func UnixNanoToTimeOptional(ns *int64) time.Time {
	if ns == nil {
		return time.Time{}
	}
	return time.Unix(0, *ns).UTC()
}

// TimeToUnixNanoOptional is the inverse of UnixNanoToTimeOptional; zero
// times map to nil.
func TimeToUnixNanoOptional(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	ns := t.UnixNano()
	return &ns
}

// FormatTimeOptional formats a time.Time object into a string using the specified layout.
// If the time is zero, it returns an empty string.
func FormatTimeOptional(t time.Time, layout string) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(layout)
}
