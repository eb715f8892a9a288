// Package timeutil provides course-timezone utilities for the extensions bot.
// Form timestamps and spreadsheet date cells frequently arrive without zone
// information, so everything here normalizes into the course's home timezone.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTimezone is the course's home timezone.
const DefaultTimezone = "America/Los_Angeles"

// CourseLocation loads the location for the given timezone name,
// falling back to the default course timezone and then to UTC.
func CourseLocation(name string) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Layouts accepted for spreadsheet cells and form timestamps.
// Zoned layouts keep their zone; naive layouts are localized by the caller.
var (
	zonedLayouts = []string{
		time.RFC3339,
		time.RFC1123Z,
		"1/2/2006 15:04:05 -0700",
	}
	naiveLayouts = []string{
		"1/2/2006 15:04:05",
		"1/2/2006 3:04:05 PM",
		"1/2/2006 3:04 PM",
		"1/2/2006",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"January 2, 2006",
		"Jan 2, 2006",
		"January 2",
		"Jan 2",
	}
)

// Parse parses a date/time string. Values without zone information are
// interpreted in loc. Values without a year default to the current year in loc.
func Parse(value string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, fmt.Errorf("timeutil: empty date value")
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	for _, layout := range naiveLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		if t.Year() == 0 {
			now := time.Now().In(loc)
			t = time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
		}
		return t, nil
	}

	return time.Time{}, fmt.Errorf("timeutil: could not parse date value %q", value)
}

// EndOfDay returns the end-of-day deadline (23:59:00) for the given time in loc.
// Deadlines on the assignment sheet are dates; the effective due moment is 11:59 PM.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 0, 0, loc)
}

// ParseDeadline parses a due-date cell and pins it to end-of-day in loc.
func ParseDeadline(value string, loc *time.Location) (time.Time, error) {
	t, err := Parse(value, loc)
	if err != nil {
		return time.Time{}, err
	}
	return EndOfDay(t, loc), nil
}

// FormatRunTimestamp formats a timestamp for the roster's last-run column.
func FormatRunTimestamp(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("1/2/2006 15:04:05")
}

// FormatDeadline formats a deadline for student-facing email bodies.
func FormatDeadline(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Monday, January 2")
}
