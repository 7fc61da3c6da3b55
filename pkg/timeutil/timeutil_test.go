package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaysBetween(t *testing.T) {
	d := time.Date(2025, 3, 30, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, DaysBetween(d, d))
	assert.Equal(t, 1, DaysBetween(d, d.AddDate(0, 0, 1)))
	assert.Equal(t, 3, DaysBetween(d, d.AddDate(0, 0, 3)))
	assert.Equal(t, -2, DaysBetween(d, d.AddDate(0, 0, -2)))
	assert.Equal(t, 1, DaysBetween(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestCalendar_TodayUsesReferenceZone(t *testing.T) {
	almaty := time.FixedZone("UTC+5", 5*3600)
	// 20:30 UTC on the 10th is already 01:30 on the 11th at UTC+5.
	clock := NewFixedClock(time.Date(2025, 6, 10, 20, 30, 0, 0, time.UTC))

	utcCal := NewCalendar(time.UTC, clock)
	zoned := NewCalendar(almaty, clock)

	assert.Equal(t, "2025-06-10", utcCal.Format(utcCal.Today()))
	assert.Equal(t, "2025-06-11", zoned.Format(zoned.Today()))
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = LoadLocation("+05:00")
	require.NoError(t, err)
	_, offset := time.Date(2025, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, 5*3600, offset)

	loc, err = LoadLocation("UTC-3")
	require.NoError(t, err)
	_, offset = time.Date(2025, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, -3*3600, offset)

	_, err = LoadLocation("UTC+99")
	assert.Error(t, err)

	_, err = LoadLocation("Not/AZone")
	assert.Error(t, err)
}
