package models

import (
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05",
	DateLayoutISO,
	DateLayoutReport,
	"02-Jan-2006 15:04",
	"02-Jan-2006 15:04:05",
	"02 Jan 2006",
	"02/01/2006",
	"Mon, 02 Jan 2006 15:04:05 MST",
}

// ParseDate parses the date formats the backend and the lab system emit.
// The result is truncated to the calendar day in UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), true
		}
	}
	return time.Time{}, false
}

// Day truncates t to midnight UTC of its own calendar date.
func Day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateRange is an inclusive calendar-day bound. A zero end is unconstrained.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

// Contains reports whether day lies inside the bound.
func (r DateRange) Contains(day time.Time) bool {
	day = Day(day)
	if !r.From.IsZero() && day.Before(Day(r.From)) {
		return false
	}
	if !r.To.IsZero() && day.After(Day(r.To)) {
		return false
	}
	return true
}
