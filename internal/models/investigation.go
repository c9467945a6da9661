package models

import "encoding/json"

// InvestigationPayload is the aggregate snapshot returned by POST /investigations.
type InvestigationPayload struct {
	Investigations []Investigation    `json:"investigations"`
	GuestSummary   []json.RawMessage  `json:"guest_summary"`
	TotalClients   int                `json:"total_clients"`
	MonthValue     Amount             `json:"month_value"`
	CRTValueData   []EmployeeRevenue  `json:"crt_value_data"`
	DaywiseClients []DayClientCount   `json:"daywise_clients"`
	MoMClients     []MonthClientCount `json:"mom_clients"`
}

// Investigation is one raw test row. A guest with several tests appears once per test.
type Investigation struct {
	ID        json.RawMessage `json:"ID,omitempty"`
	GuestCode string          `json:"GuestCode"`
	GuestName string          `json:"GuestName"`
	Phone     string          `json:"Phone"`
	Email     string          `json:"email"`
	Gender    string          `json:"Gender"`
	Center    string          `json:"Center"`
	Date      string          `json:"Date"`
	ItemName  string          `json:"ItemName"`
	ItemValue Amount          `json:"itemValue"`
}

type EmployeeRevenue struct {
	EmployeeName string `json:"employee_name"`
	Amount       Amount `json:"amount"`
}

type DayClientCount struct {
	Date        string `json:"date"`
	ClientCount int    `json:"client_count"`
}

type MonthClientCount struct {
	Month       string `json:"month"`
	ClientCount int    `json:"client_count"`
}
