// Package export renders guest lists and dashboard summaries as xlsx
// workbooks and as plain row tables for Google Sheets.
package export

import (
	"bytes"
	"fmt"
	"io"

	"diagdesk/internal/analytics"
	"diagdesk/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	SheetGuests    = "Guests"
	SheetSummary   = "Summary"
	SheetTests     = "Tests"
	SheetEmployees = "Employees"
	SheetClients   = "Clients"
)

// GuestRows returns the guest table with its header row first.
func GuestRows(guests []models.Guest) [][]interface{} {
	rows := make([][]interface{}, 0, len(guests)+1)
	rows = append(rows, []interface{}{"Guest Code", "Name", "Gender", "Phone", "Date", "Center", "Test Status", "Status", "Amount"})
	for _, g := range guests {
		rows = append(rows, []interface{}{
			g.GuestCode, g.GuestName, g.Gender, g.Phone, g.Date, g.Center, g.TestStatus, g.Status, g.ItemValueSum,
		})
	}
	return rows
}

// SummaryRows returns the headline figures as metric/value pairs.
func SummaryRows(s analytics.Summary) [][]interface{} {
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Total Revenue", s.TotalRevenue},
		{"Unique Clients", s.TotalClients},
		{"Total Tests", s.TotalTests},
	}
	for i, b := range s.TopTests {
		rows = append(rows, []interface{}{fmt.Sprintf("Top Test %d: %s", i+1, b.Name), b.Value})
	}
	return rows
}

func bucketRows(header string, buckets []analytics.Bucket) [][]interface{} {
	rows := [][]interface{}{{header, "Value"}}
	for _, b := range buckets {
		rows = append(rows, []interface{}{b.Name, b.Value})
	}
	return rows
}

func clientRows(clients []analytics.ClientRevenue) [][]interface{} {
	rows := [][]interface{}{{"Guest Code", "Name", "Phone", "Center", "Date", "Amount"}}
	for _, c := range clients {
		rows = append(rows, []interface{}{c.GuestCode, c.GuestName, c.Phone, c.Center, c.Date, c.Amount})
	}
	return rows
}

// WriteGuests writes a single-sheet workbook of the guest list.
func WriteGuests(w io.Writer, guests []models.Guest) error {
	return writeWorkbook(w, []sheet{{SheetGuests, GuestRows(guests)}})
}

// WriteDashboard writes the summary, test distribution, employee revenue and
// per-client revenue as separate sheets.
func WriteDashboard(w io.Writer, s analytics.Summary) error {
	return writeWorkbook(w, []sheet{
		{SheetSummary, SummaryRows(s)},
		{SheetTests, bucketRows("Test", s.TestDistribution)},
		{SheetEmployees, bucketRows("Employee", s.EmployeeRevenue)},
		{SheetClients, clientRows(s.Clients)},
	})
}

// MonthlyFileName is the download name of the monthly bookings workbook.
func MonthlyFileName(month, year int) string {
	return fmt.Sprintf("monthly_guest_summary_%d_%d.xlsx", month, year)
}

// WorkbookInfo describes a downloaded workbook.
type WorkbookInfo struct {
	Sheets []string
	Rows   map[string]int
}

// InspectWorkbook opens xlsx bytes and counts the rows of each sheet. It
// fails when data is not a readable workbook.
func InspectWorkbook(data []byte) (*WorkbookInfo, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	info := &WorkbookInfo{Sheets: f.GetSheetList(), Rows: make(map[string]int)}
	for _, name := range info.Sheets {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}
		info.Rows[name] = len(rows)
	}
	return info, nil
}

type sheet struct {
	name string
	rows [][]interface{}
}

func writeWorkbook(w io.Writer, sheets []sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("create sheet %s: %w", s.name, err)
		}

		for r, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(s.name, cell, &row); err != nil {
				return fmt.Errorf("write %s row %d: %w", s.name, r+1, err)
			}
		}

		if len(s.rows) > 0 {
			last, err := excelize.CoordinatesToCellName(len(s.rows[0]), 1)
			if err != nil {
				return err
			}
			_ = f.SetCellStyle(s.name, "A1", last, headerStyle)
			lastCol, _, _ := excelize.SplitCellName(last)
			_ = f.SetColWidth(s.name, "A", lastCol, 18)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
