// Package temporal applies effective-date rules to catalog records.
package temporal

import "time"

const secondsPerDay = 24 * 60 * 60

// Bounded is a record with optional validity bounds.
type Bounded interface {
	Bounds() (from, thru *time.Time)
}

// CurrentlyValid returns the records whose thru date is unset or strictly
// after now, preserving order. Future from dates are not considered.
func CurrentlyValid[T Bounded](records []T, now time.Time) []T {
	out := make([]T, 0, len(records))
	for _, r := range records {
		if _, thru := r.Bounds(); thru == nil || thru.After(now) {
			out = append(out, r)
		}
	}
	return out
}

// ReindexAt merges two optional reindex-due timestamps, keeping the earlier.
func ReindexAt(candidate, current *time.Time) *time.Time {
	if candidate == nil {
		return current
	}
	if current == nil || candidate.Before(*current) {
		return candidate
	}
	return current
}

// Admit decides whether an already thru-filtered record is emitted now.
// A record starting in the future is held back and its from date returned
// as due; otherwise it is emitted and its thru date, if any, is due.
func Admit(r Bounded, now time.Time) (emit bool, due *time.Time) {
	from, thru := r.Bounds()
	if from != nil && from.After(now) {
		return false, from
	}
	return true, thru
}

// Future returns t if it lies strictly after now, nil otherwise.
func Future(t *time.Time, now time.Time) *time.Time {
	if t != nil && t.After(now) {
		return t
	}
	return nil
}

// QuantizeDays converts t to whole days since the Unix epoch (UTC).
// A nil time quantizes to 0.
func QuantizeDays(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	secs := t.Unix()
	days := secs / secondsPerDay
	if secs%secondsPerDay < 0 {
		days--
	}
	return days
}
