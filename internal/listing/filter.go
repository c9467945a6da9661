package listing

import (
	"strings"

	"diagdesk/internal/models"
)

type StatusFilter string

const (
	StatusAll     StatusFilter = "all"
	StatusClosed  StatusFilter = "closed"
	StatusPending StatusFilter = "pending"
)

// ParseStatus maps user input to a StatusFilter; unknown values mean all.
func ParseStatus(s string) StatusFilter {
	switch StatusFilter(strings.ToLower(strings.TrimSpace(s))) {
	case StatusClosed:
		return StatusClosed
	case StatusPending:
		return StatusPending
	default:
		return StatusAll
	}
}

// GuestFilter is the bookings table filter. The zero value matches everything.
type GuestFilter struct {
	Search  string
	Range   models.DateRange
	Status  StatusFilter
	Centers []string
}

func (f GuestFilter) Match(g models.Guest) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(g.GuestName), q) && !strings.Contains(strings.ToLower(g.GuestCode), q) {
			return false
		}
	}

	switch f.Status {
	case StatusClosed:
		if !g.IsClosed() {
			return false
		}
	case StatusPending:
		if g.IsClosed() {
			return false
		}
	}

	if len(f.Centers) > 0 && !contains(f.Centers, g.Center) {
		return false
	}

	if !f.Range.IsZero() {
		day, ok := models.ParseDate(g.Date)
		if !ok || !f.Range.Contains(day) {
			return false
		}
	}
	return true
}

// ReportFilter is the lab reports table filter.
type ReportFilter struct {
	Patient string
	Range   models.DateRange
}

// Match keeps rows whose patient name contains Patient. With a date bound set,
// rows without a parsable InDate are dropped.
func (f ReportFilter) Match(r models.LabReport) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Patient)); q != "" {
		if !strings.Contains(strings.ToLower(r.PName), q) {
			return false
		}
	}
	if !f.Range.IsZero() {
		day, ok := models.ParseDate(r.InDate)
		if !ok || !f.Range.Contains(day) {
			return false
		}
	}
	return true
}

// Filter returns the rows for which keep is true, in input order.
func Filter[T any](rows []T, keep func(T) bool) []T {
	if keep == nil {
		return append([]T(nil), rows...)
	}
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
