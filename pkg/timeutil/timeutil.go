// Package timeutil provides calendar-day arithmetic in a single
// deployment-wide reference timezone. Streak days and "today" are always
// computed here so that every instance agrees on where a day starts.
package timeutil

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLOCK
// ══════════════════════════════════════════════════════════════════════════════

// Clock is the source of the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock is a manually driven clock for tests and replays.
type FixedClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewFixedClock creates a clock frozen at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

// Now implements Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// AdvanceDays moves the clock forward by n calendar days.
func (c *FixedClock) AdvanceDays(n int) {
	c.mu.Lock()
	c.now = c.now.AddDate(0, 0, n)
	c.mu.Unlock()
}

// ══════════════════════════════════════════════════════════════════════════════
// CALENDAR
// ══════════════════════════════════════════════════════════════════════════════

// Calendar binds a clock to the reference timezone.
type Calendar struct {
	loc   *time.Location
	clock Clock
}

// NewCalendar creates a calendar. A nil location means UTC, a nil clock
// means the system clock.
func NewCalendar(loc *time.Location, clock Clock) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Calendar{loc: loc, clock: clock}
}

// Location returns the reference timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Now returns the current time in the reference timezone.
func (c *Calendar) Now() time.Time {
	return c.clock.Now().In(c.loc)
}

// Today returns midnight of the current day in the reference timezone.
func (c *Calendar) Today() time.Time {
	return c.DateOf(c.clock.Now())
}

// DateOf truncates t to midnight of its calendar day in the reference timezone.
func (c *Calendar) DateOf(t time.Time) time.Time {
	return StartOfDay(t, c.loc)
}

// Format formats t as a calendar date in the reference timezone.
func (c *Calendar) Format(t time.Time) string {
	return t.In(c.loc).Format(FormatDate)
}

// ══════════════════════════════════════════════════════════════════════════════
// DAY ARITHMETIC
// ══════════════════════════════════════════════════════════════════════════════

// StartOfDay returns 00:00:00 of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DaysBetween returns the signed number of calendar days from `from` to `to`.
// Only the year/month/day fields are compared, so DST shifts never produce
// a fractional day.
func DaysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// LoadLocation resolves an IANA zone name or a fixed offset such as
// "+05:00" / "UTC-3". An empty name means UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "utc") {
		return time.UTC, nil
	}

	offset := strings.TrimPrefix(strings.TrimPrefix(name, "UTC"), "GMT")
	if (offset != name && offset != "") || strings.HasPrefix(name, "+") || strings.HasPrefix(name, "-") {
		return parseOffset(name, offset)
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}

func parseOffset(name, offset string) (*time.Location, error) {
	if offset == "" {
		offset = name
	}
	sign := 1
	switch offset[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return nil, fmt.Errorf("invalid offset %q", name)
	}

	var hours, minutes int
	body := offset[1:]
	if strings.Contains(body, ":") {
		if _, err := fmt.Sscanf(body, "%d:%d", &hours, &minutes); err != nil {
			return nil, fmt.Errorf("invalid offset %q: %w", name, err)
		}
	} else if _, err := fmt.Sscanf(body, "%d", &hours); err != nil {
		return nil, fmt.Errorf("invalid offset %q: %w", name, err)
	}
	if hours > 14 || minutes > 59 || hours < 0 || minutes < 0 {
		return nil, fmt.Errorf("offset %q out of range", name)
	}

	return time.FixedZone(name, sign*(hours*3600+minutes*60)), nil
}
