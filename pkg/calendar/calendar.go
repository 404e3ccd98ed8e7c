// Package calendar buckets timestamps into stocktake days.
//
// A day key is the calendar date in the reference timezone, stored as UTC
// midnight of that date so that it compares equal regardless of the server
// timezone or database driver.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

const DayLayout = "2006-01-02"

// Calendar resolves "today" and day keys for a fixed reference timezone.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

func New(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{loc: loc, now: time.Now}
}

// WithClock returns a copy using the supplied clock.
func (c *Calendar) WithClock(now func() time.Time) *Calendar {
	cp := *c
	cp.now = now
	return &cp
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Now returns the current instant in UTC at database precision.
func (c *Calendar) Now() time.Time {
	return c.now().UTC().Truncate(time.Microsecond)
}

// Today returns the day key for the current instant.
func (c *Calendar) Today() time.Time {
	return c.DayOf(c.now())
}

// DayOf returns the day key containing t in the reference timezone.
func (c *Calendar) DayOf(t time.Time) time.Time {
	y, m, d := t.In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay accepts YYYY-MM-DD (taken as a reference-timezone date) or an
// RFC3339 instant.
func (c *Calendar) ParseDay(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if day, err := time.Parse(DayLayout, value); err == nil {
		return day, nil
	}
	instant, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", value)
	}
	return c.DayOf(instant), nil
}

// FormatDay renders a day key as YYYY-MM-DD.
func FormatDay(day time.Time) string {
	return day.UTC().Format(DayLayout)
}

// Range is an inclusive span of day keys.
type Range struct {
	Start time.Time
	End   time.Time
}

// Resolve builds an inclusive range, defaulting a missing start to today and
// a missing end to the start.
func (c *Calendar) Resolve(start, end *time.Time) (Range, error) {
	r := Range{Start: c.Today()}
	if start != nil {
		r.Start = c.Normalize(*start)
	}
	r.End = r.Start
	if end != nil {
		r.End = c.Normalize(*end)
	}
	if r.End.Before(r.Start) {
		return Range{}, fmt.Errorf("end date %s is before start date %s", FormatDay(r.End), FormatDay(r.Start))
	}
	return r, nil
}

// Contains reports whether day falls within the range.
func (r Range) Contains(day time.Time) bool {
	return !day.Before(r.Start) && !day.After(r.End)
}

// Instants converts the day range into a half-open [from, to) window of
// instants in the reference timezone, for filtering timestamp columns.
func (c *Calendar) Instants(r Range) (time.Time, time.Time) {
	from := time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, c.loc)
	to := time.Date(r.End.Year(), r.End.Month(), r.End.Day(), 0, 0, 0, 0, c.loc).AddDate(0, 0, 1)
	return from.UTC(), to.UTC()
}

// Normalize keeps an existing day key and buckets any other instant with DayOf.
func (c *Calendar) Normalize(day time.Time) time.Time {
	if day.Location() == time.UTC && day.Hour() == 0 && day.Minute() == 0 && day.Second() == 0 && day.Nanosecond() == 0 {
		return day
	}
	return c.DayOf(day)
}
