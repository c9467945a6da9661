package analytics

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"diagdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAggregate_DedupFirstOccurrence(t *testing.T) {
	raw := `{"investigations":[
		{"GuestCode":"A","itemValue":"100","Date":"2024-01-01","ItemName":"CBC","Center":"North"},
		{"GuestCode":"A","itemValue":"999","Date":"2024-01-02","ItemName":"Lipid","Center":"North"},
		{"GuestCode":"B","itemValue":"50","Date":"2024-01-03","ItemName":"CBC","Center":"South"}
	]}`
	var payload models.InvestigationPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	s := Aggregate(&payload, Filter{})
	assert.Equal(t, 150.0, s.TotalRevenue)
	assert.Equal(t, 2, s.TotalClients)
	assert.Equal(t, 3, s.TotalTests)
	require.Len(t, s.Clients, 2)
	assert.Equal(t, 100.0, s.Clients[0].Amount)
	assert.Equal(t, []string{"North", "South"}, s.CenterOptions)
	assert.Equal(t, []Bucket{{"CBC", 2}, {"Lipid", 1}}, s.TestDistribution)
}

func TestAggregate_DuplicateRowIsIdempotent(t *testing.T) {
	rows := []models.Investigation{
		{GuestCode: "A", ItemValue: 100, Date: "2024-01-01"},
		{GuestCode: "B", ItemValue: 50, Date: "2024-01-03"},
	}
	before := Aggregate(&models.InvestigationPayload{Investigations: rows}, Filter{})

	withDup := append(append([]models.Investigation{}, rows...), rows[1])
	after := Aggregate(&models.InvestigationPayload{Investigations: withDup}, Filter{})

	assert.Equal(t, before.TotalRevenue, after.TotalRevenue)
	assert.Equal(t, before.TotalClients, after.TotalClients)
	assert.Equal(t, before.TotalTests+1, after.TotalTests)
}

func TestFilterRows(t *testing.T) {
	rows := []models.Investigation{
		{GuestCode: "A", Center: "North", Date: "2024-01-01T10:00:00"},
		{GuestCode: "B", Center: "South", Date: "2024-01-05"},
		{GuestCode: "C", Center: "North", Date: "2024-01-10"},
		{GuestCode: "D", Center: "North", Date: ""},
	}

	tests := []struct {
		name string
		f    Filter
		want []string
	}{
		{"no filter", Filter{}, []string{"A", "B", "C", "D"}},
		{"center", Filter{Centers: []string{"North"}}, []string{"A", "C", "D"}},
		{"inclusive range", Filter{Range: models.DateRange{From: day(2024, 1, 1), To: day(2024, 1, 5)}}, []string{"A", "B"}},
		{"open end", Filter{Range: models.DateRange{From: day(2024, 1, 5)}}, []string{"B", "C"}},
		{"center and range", Filter{Centers: []string{"North"}, Range: models.DateRange{To: day(2024, 1, 9)}}, []string{"A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, inv := range FilterRows(rows, tt.f) {
				got = append(got, inv.GuestCode)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTestDistribution_StableTies(t *testing.T) {
	rows := []models.Investigation{
		{ItemName: "Urine"}, {ItemName: "CBC"}, {ItemName: "TSH"},
		{ItemName: "CBC"}, {ItemName: "TSH"}, {ItemName: "Lipid"},
	}
	assert.Equal(t, []Bucket{{"CBC", 2}, {"TSH", 2}, {"Urine", 1}, {"Lipid", 1}}, TestDistribution(rows))
}

func TestEmployeeRevenue_Others(t *testing.T) {
	var data []models.EmployeeRevenue
	for i := 1; i <= 11; i++ {
		data = append(data, models.EmployeeRevenue{
			EmployeeName: fmt.Sprintf("CRT Emp%02d", i),
			Amount:       models.Amount(i * 10),
		})
	}

	got := EmployeeRevenue(data, 8)
	require.Len(t, got, 9)
	assert.Equal(t, "Emp11", got[0].Name)
	assert.Equal(t, 110.0, got[0].Value)
	assert.Equal(t, "Emp04", got[7].Name)
	assert.Equal(t, models.OthersBucket, got[8].Name)
	assert.Equal(t, 60.0, got[8].Value)
}

func TestEmployeeRevenue_FewEmployees(t *testing.T) {
	got := EmployeeRevenue([]models.EmployeeRevenue{
		{EmployeeName: "CRT Asha", Amount: 10},
		{EmployeeName: "Ravi", Amount: 30},
	}, 8)
	assert.Equal(t, []Bucket{{"Asha", 10}, {"Ravi", 30}}, got, "backend order is kept")
}

func TestAggregate_TopTestsAndBoundedSeries(t *testing.T) {
	payload := &models.InvestigationPayload{
		DaywiseClients: []models.DayClientCount{
			{Date: "2024-01-30", ClientCount: 3},
			{Date: "2024-02-02", ClientCount: 4},
		},
		MoMClients: []models.MonthClientCount{
			{Month: "2023-12", ClientCount: 9},
			{Month: "2024-01", ClientCount: 20},
			{Month: "2024-02", ClientCount: 12},
			{Month: "Q1", ClientCount: 1},
		},
	}
	for i, name := range []string{"A", "B", "C", "D", "E", "F", "G"} {
		payload.Investigations = append(payload.Investigations, models.Investigation{
			GuestCode: fmt.Sprint(i), ItemName: name, Date: "2024-01-31",
		})
	}

	s := Aggregate(payload, Filter{Range: models.DateRange{From: day(2024, 1, 15), To: day(2024, 1, 31)}})
	assert.Len(t, s.TopTests, models.TopTests)
	assert.Len(t, s.TestDistribution, 7)
	assert.Equal(t, []models.DayClientCount{{Date: "2024-01-30", ClientCount: 3}}, s.DaywiseClients)

	var months []string
	for _, m := range s.MoMClients {
		months = append(months, m.Month)
	}
	assert.Equal(t, []string{"2024-01", "Q1"}, months)

	unbounded := Aggregate(payload, Filter{})
	assert.Len(t, unbounded.DaywiseClients, 2)
	assert.Len(t, unbounded.MoMClients, 4)
}

func TestAggregate_Nil(t *testing.T) {
	assert.Equal(t, Summary{}, Aggregate(nil, Filter{}))
}
