package store

import "time"

// Clock returns the current time for event timestamping. It is an injected
// dependency (spec.md §9: "never read them from process globals inside the
// core") so tests can pin deterministic times; only the CLI front-end may
// resolve a real clock.
type Clock func() time.Time

// SystemClock is monotonic-within-a-command per spec.md §4.1: if the OS
// clock has not advanced since the previous event, it returns the previous
// timestamp plus one millisecond rather than a duplicate or earlier value.
func SystemClock() Clock {
	var last time.Time
	return func() time.Time {
		now := time.Now().UTC()
		if !last.IsZero() && !now.After(last) {
			now = last.Add(time.Millisecond)
		}
		last = now
		return now
	}
}

// formatTS renders t as ISO-8601 UTC with millisecond precision, per
// spec.md §4.1.
func formatTS(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
