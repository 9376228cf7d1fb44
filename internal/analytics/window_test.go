package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	r, err := ParseRange("2025-01-30", "2025-02-02", 31)
	require.NoError(t, err)
	assert.Equal(t, 4, r.Len())
	assert.Equal(t, []string{"2025-01-30", "2025-01-31", "2025-02-01", "2025-02-02"}, r.Days())

	_, err = ParseRange("2025-02-02", "2025-01-30", 31)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = ParseRange("yesterday", "2025-01-30", 31)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = ParseRange("2025-01-01", "2025-01-31", 30)
	assert.ErrorIs(t, err, ErrWindowTooLarge)

	_, err = ParseRange("2025-01-01", "2025-01-30", 30)
	assert.NoError(t, err)
}

func TestDateKeyIsUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	ts := time.Date(2025, 3, 10, 1, 0, 0, 0, loc)
	assert.Equal(t, "2025-03-09", DateKey(ts))

	start, end, err := DayBounds("2025-03-09")
	require.NoError(t, err)
	assert.True(t, !ts.Before(start) && ts.Before(end))
}

func TestLastDays(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, Range{From: "2025-02-28", To: "2025-03-01"}, LastDays(now, 2))
}
