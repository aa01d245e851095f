// Package calendar provides the month arithmetic used to step a crawl through history.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

// monthsPerYear is the number of calendar months in a year.
const monthsPerYear = 12

// ErrInvalidDate is returned when a calendar key cannot be parsed.
var ErrInvalidDate = errors.New("invalid calendar date")

// ErrNonMonotonic is returned when advancing the pointer does not move it forward.
var ErrNonMonotonic = errors.New("calendar pointer did not advance")

// Parse parses a calendar key in YYYY-MM-DD form. The result is midnight UTC.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}

	return t, nil
}

// Key formats t as a calendar key.
func Key(t time.Time) string {
	return t.Format(time.DateOnly)
}

// Today returns the calendar date of now as midnight UTC.
func Today(now time.Time) time.Time {
	return Date(now)
}

// Date truncates t to its calendar date, keeping the wall-clock date of t's location.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddMonths moves t by n calendar months keeping the day of month. When the target
// month is shorter, the day is clamped to its last day, so Jan 31 + 1 is Feb 28 (or 29).
func AddMonths(t time.Time, n int) time.Time {
	total := int(t.Month()) - 1 + n
	year := t.Year() + floorDiv(total, monthsPerYear)
	month := time.Month(floorMod(total, monthsPerYear) + 1)

	day := min(t.Day(), DaysIn(year, month))

	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// Next advances the pointer by exactly one month and checks it moved forward.
func Next(t time.Time) (time.Time, error) {
	next := AddMonths(t, 1)
	if !next.After(t) {
		return time.Time{}, fmt.Errorf("%w: %s -> %s", ErrNonMonotonic, Key(t), Key(next))
	}

	return next, nil
}

// Previous returns the pointer one month back.
func Previous(t time.Time) time.Time {
	return AddMonths(t, -1)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	// Day zero of the following month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}

	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
