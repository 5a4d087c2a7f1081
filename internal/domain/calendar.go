package domain

import (
	"fmt"
	"time"
)

// DefaultLocation is the property time zone used when none is configured.
const DefaultLocation = "America/Los_Angeles"

// Calendar pins every date to one property location. Parsed dates are
// midnight in that location and month windows are [1st 00:00, next 1st 00:00)
// there, so a record never drifts into a neighbouring month.
type Calendar struct {
	loc *time.Location
}

// NewCalendar loads the named IANA location.
func NewCalendar(name string) (*Calendar, error) {
	if name == "" {
		name = DefaultLocation
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load location %q: %w", name, err)
	}
	return &Calendar{loc: loc}, nil
}

// CalendarIn wraps an already loaded location.
func CalendarIn(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{loc: loc}
}

// Location returns the calendar's location.
func (c *Calendar) Location() *time.Location { return c.loc }

// Date returns midnight of the given day.
func (c *Calendar) Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, c.loc)
}

// Normalize converts t (e.g. a store timestamp) to midnight of its local day.
func (c *Calendar) Normalize(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	local := t.In(c.loc)
	return c.Date(local.Year(), local.Month(), local.Day())
}

// Parse parses a date string with the first matching layout, in the calendar location.
func (c *Calendar) Parse(value string, layouts ...string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, c.loc); err == nil {
			return c.Normalize(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// MonthRange returns the half-open range covering a calendar month.
func (c *Calendar) MonthRange(year int, month time.Month) (time.Time, time.Time) {
	start := c.Date(year, month, 1)
	return start, start.AddDate(0, 1, 0)
}

// YearRange returns the half-open range covering a calendar year.
func (c *Calendar) YearRange(year int) (time.Time, time.Time) {
	start := c.Date(year, time.January, 1)
	return start, start.AddDate(1, 0, 0)
}

// Window selects records of one source within a year or a single month.
// Month zero means the whole year.
type Window struct {
	Collection string
	Source     Source
	Year       int
	Month      time.Month
}

// Validate checks the window selector.
func (w Window) Validate() error {
	if w.Collection == "" {
		return fmt.Errorf("window collection cannot be empty")
	}
	if w.Source == "" {
		return fmt.Errorf("window source cannot be empty")
	}
	if w.Year < 1970 || w.Year > 9999 {
		return fmt.Errorf("window year %d out of range", w.Year)
	}
	if w.Month < 0 || w.Month > 12 {
		return fmt.Errorf("window month %d out of range", w.Month)
	}
	return nil
}

// Key identifies the window for serialization. Month windows share their
// year's key so a month replace never interleaves with a year replace.
func (w Window) Key() string {
	return fmt.Sprintf("%s/%s/%04d", w.Collection, w.Source, w.Year)
}

func (w Window) String() string {
	if w.Month == 0 {
		return w.Key()
	}
	return fmt.Sprintf("%s-%02d", w.Key(), int(w.Month))
}

// Range returns the window's half-open date range in the calendar.
func (w Window) Range(c *Calendar) (time.Time, time.Time) {
	if w.Month == 0 {
		return c.YearRange(w.Year)
	}
	return c.MonthRange(w.Year, w.Month)
}

// Contains reports whether t falls within [start, end).
func Contains(start, end, t time.Time) bool {
	return !t.Before(start) && t.Before(end)
}
