// Package analytics turns the backend's aggregate investigations payload into
// the figures shown on the dashboard.
package analytics

import (
	"sort"
	"strings"
	"time"

	"diagdesk/internal/models"
)

// Filter narrows the investigation rows. Empty Centers means every center.
type Filter struct {
	Centers []string
	Range   models.DateRange
}

// Bucket is one named count or amount in a chart.
type Bucket struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ClientRevenue is the first row seen for a guest and the amount it carried.
type ClientRevenue struct {
	GuestCode string  `json:"guest_code"`
	GuestName string  `json:"guest_name"`
	Phone     string  `json:"phone"`
	Center    string  `json:"center"`
	Date      string  `json:"date"`
	Amount    float64 `json:"amount"`
}

type Summary struct {
	TotalRevenue     float64                   `json:"total_revenue"`
	TotalClients     int                       `json:"total_clients"`
	TotalTests       int                       `json:"total_tests"`
	TestDistribution []Bucket                  `json:"test_distribution"`
	TopTests         []Bucket                  `json:"top_tests"`
	EmployeeRevenue  []Bucket                  `json:"employee_revenue"`
	DaywiseClients   []models.DayClientCount   `json:"daywise_clients"`
	MoMClients       []models.MonthClientCount `json:"mom_clients"`
	Clients          []ClientRevenue           `json:"clients"`
	Tests            []models.Investigation    `json:"tests"`
	CenterOptions    []string                  `json:"center_options"`
}

// Aggregate computes the dashboard summary. Revenue and client counts are
// deduplicated by guest code and the first row of each guest wins, so a
// guest whose rows carry different values is counted at the first value.
func Aggregate(payload *models.InvestigationPayload, f Filter) Summary {
	if payload == nil {
		return Summary{}
	}

	rows := FilterRows(payload.Investigations, f)

	s := Summary{
		TotalTests:    len(rows),
		Tests:         rows,
		CenterOptions: CenterOptions(payload.Investigations),
	}

	seen := make(map[string]struct{}, len(rows))
	for _, inv := range rows {
		if _, ok := seen[inv.GuestCode]; ok {
			continue
		}
		seen[inv.GuestCode] = struct{}{}
		amount := inv.ItemValue.Float64()
		s.TotalRevenue += amount
		s.Clients = append(s.Clients, ClientRevenue{
			GuestCode: inv.GuestCode,
			GuestName: inv.GuestName,
			Phone:     inv.Phone,
			Center:    inv.Center,
			Date:      inv.Date,
			Amount:    amount,
		})
	}
	s.TotalClients = len(s.Clients)

	s.TestDistribution = TestDistribution(rows)
	s.TopTests = s.TestDistribution
	if len(s.TopTests) > models.TopTests {
		s.TopTests = s.TopTests[:models.TopTests]
	}

	s.EmployeeRevenue = EmployeeRevenue(payload.CRTValueData, models.TopEmployees)
	s.DaywiseClients = boundDays(payload.DaywiseClients, f.Range)
	s.MoMClients = boundMonths(payload.MoMClients, f.Range)
	return s
}

// FilterRows keeps rows in the selected centers whose date lies in the
// inclusive range. Rows with an unreadable date are dropped once a bound is set.
func FilterRows(rows []models.Investigation, f Filter) []models.Investigation {
	centers := make(map[string]struct{}, len(f.Centers))
	for _, c := range f.Centers {
		centers[c] = struct{}{}
	}

	out := make([]models.Investigation, 0, len(rows))
	for _, inv := range rows {
		if len(centers) > 0 {
			if _, ok := centers[inv.Center]; !ok {
				continue
			}
		}
		if !f.Range.IsZero() {
			day, ok := models.ParseDate(inv.Date)
			if !ok || !f.Range.Contains(day) {
				continue
			}
		}
		out = append(out, inv)
	}
	return out
}

// TestDistribution counts rows per test name, most frequent first. Equal
// counts keep the order the names first appeared in.
func TestDistribution(rows []models.Investigation) []Bucket {
	index := make(map[string]int)
	var buckets []Bucket
	for _, inv := range rows {
		i, ok := index[inv.ItemName]
		if !ok {
			i = len(buckets)
			index[inv.ItemName] = i
			buckets = append(buckets, Bucket{Name: inv.ItemName})
		}
		buckets[i].Value++
	}
	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].Value > buckets[j].Value
	})
	return buckets
}

// EmployeeRevenue strips the "CRT " prefix. Up to n employees keep the
// backend's order; past that they are sorted by amount and everything after
// the top n is collapsed into an Others bucket.
func EmployeeRevenue(data []models.EmployeeRevenue, n int) []Bucket {
	buckets := make([]Bucket, 0, len(data))
	for _, e := range data {
		buckets = append(buckets, Bucket{
			Name:  strings.Replace(e.EmployeeName, "CRT ", "", 1),
			Value: e.Amount.Float64(),
		})
	}
	if n <= 0 || len(buckets) <= n {
		return buckets
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].Value > buckets[j].Value
	})

	var others float64
	for _, b := range buckets[n:] {
		others += b.Value
	}
	return append(buckets[:n:n], Bucket{Name: models.OthersBucket, Value: others})
}

// CenterOptions lists every distinct center in the payload, sorted.
func CenterOptions(rows []models.Investigation) []string {
	set := make(map[string]struct{})
	for _, inv := range rows {
		if inv.Center != "" {
			set[inv.Center] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func boundDays(days []models.DayClientCount, r models.DateRange) []models.DayClientCount {
	if r.IsZero() {
		return days
	}
	out := make([]models.DayClientCount, 0, len(days))
	for _, d := range days {
		day, ok := models.ParseDate(d.Date)
		if ok && r.Contains(day) {
			out = append(out, d)
		}
	}
	return out
}

var monthLayouts = []string{"2006-01", "Jan 2006", "January 2006", "Jan-2006", "01-2006", "2006-01-02"}

// boundMonths keeps months that overlap the range. Labels that are not
// recognizable months are kept.
func boundMonths(months []models.MonthClientCount, r models.DateRange) []models.MonthClientCount {
	if r.IsZero() {
		return months
	}
	out := make([]models.MonthClientCount, 0, len(months))
	for _, m := range months {
		start, ok := parseMonth(m.Month)
		if !ok {
			out = append(out, m)
			continue
		}
		end := start.AddDate(0, 1, -1)
		if !r.From.IsZero() && end.Before(models.Day(r.From)) {
			continue
		}
		if !r.To.IsZero() && start.After(models.Day(r.To)) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func parseMonth(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
