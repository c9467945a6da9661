package models

import "encoding/json"

// Guest is one row of the bookings table as returned by POST /guests.
type Guest struct {
	GuestName    string  `json:"GuestName"`
	Gender       string  `json:"Gender"`
	GuestCode    string  `json:"GuestCode"`
	Phone        string  `json:"Phone"`
	Date         string  `json:"Date"`
	Center       string  `json:"Center"`
	TestStatus   string  `json:"TestStatus"`
	Status       string  `json:"Status"`
	ReportURL    string  `json:"ReportURL,omitempty"`
	BookingID    string  `json:"BookingID,omitempty"`
	ItemValueSum float64 `json:"ItemValueSum"`
}

// IsClosed reports whether the coarse status is closed. Anything else counts as pending.
func (g Guest) IsClosed() bool {
	return g.Status == GuestStatusClosed
}

// SlotBooking is a booking already stored for a guest (GET /get-slot-bookings).
type SlotBooking struct {
	GuestCode string `json:"GuestCode"`
	Date      string `json:"Date"`
	Age       string `json:"Age"`
	Address   string `json:"Address"`
}

// GuestItem is one billed item in the guest detail view.
type GuestItem struct {
	Item     string `json:"Item"`
	ItemCode string `json:"ItemCode"`
	ItemName string `json:"ItemName"`
}

// UnmarshalJSON accepts numeric item codes as well as strings.
func (g *GuestItem) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*g = GuestItem{
		Item:     stringField(raw, "Item"),
		ItemCode: stringField(raw, "ItemCode"),
		ItemName: stringField(raw, "ItemName"),
	}
	return nil
}
