// Package analytics holds the pure computations behind the materialized
// survey analytics: UTC day windows, per-day rollup derivation from
// submitted responses, and free-text insight extraction.
//
// Nothing here performs I/O. The services layer loads responses, calls
// BuildDay, and persists the result; given the same inputs the output is
// identical, which is what makes the daily rebuild idempotent.
package analytics

import (
	"errors"
	"time"
)

// DateLayout is the format of every rollup date key.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidRange is returned for malformed or inverted date ranges.
	ErrInvalidRange = errors.New("invalid date range")
	// ErrWindowTooLarge is returned when a range exceeds the allowed day count.
	ErrWindowTooLarge = errors.New("analytics window too large")
)

// DateKey returns the UTC calendar day of t as a rollup key.
func DateKey(t time.Time) string { return t.UTC().Format(DateLayout) }

// DayBounds returns the half-open UTC interval [start, end) covered by key.
func DayBounds(key string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(DateLayout, key, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	return start, start.AddDate(0, 0, 1), nil
}

// Range is an inclusive span of UTC days.
type Range struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ParseRange validates from/to date keys and bounds the window to maxDays
// inclusive days. maxDays <= 0 disables the bound.
func ParseRange(from, to string, maxDays int) (Range, error) {
	f, err := time.ParseInLocation(DateLayout, from, time.UTC)
	if err != nil {
		return Range{}, ErrInvalidRange
	}
	t, err := time.ParseInLocation(DateLayout, to, time.UTC)
	if err != nil {
		return Range{}, ErrInvalidRange
	}
	if t.Before(f) {
		return Range{}, ErrInvalidRange
	}
	r := Range{From: from, To: to}
	if maxDays > 0 && r.Len() > maxDays {
		return Range{}, ErrWindowTooLarge
	}
	return r, nil
}

// Len returns the number of days in r.
func (r Range) Len() int {
	f, _ := time.ParseInLocation(DateLayout, r.From, time.UTC)
	t, _ := time.ParseInLocation(DateLayout, r.To, time.UTC)
	return int(t.Sub(f).Hours()/24) + 1
}

// Days lists every date key in r in ascending order.
func (r Range) Days() []string {
	f, err := time.ParseInLocation(DateLayout, r.From, time.UTC)
	if err != nil {
		return nil
	}
	n := r.Len()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, f.AddDate(0, 0, i).Format(DateLayout))
	}
	return out
}

// LastDays returns the range of n days ending on the UTC day of now.
func LastDays(now time.Time, n int) Range {
	if n < 1 {
		n = 1
	}
	end := now.UTC()
	return Range{From: DateKey(end.AddDate(0, 0, -(n - 1))), To: DateKey(end)}
}
