package models

// NewSlotBooking is the write payload of POST /slot-bookings.
type NewSlotBooking struct {
	GuestCode string `json:"guest_code"`
	Date      string `json:"Date"`
	Age       int    `json:"age"`
	Address   string `json:"address"`
	DoorNo    string `json:"door_no"`
	Pincode   string `json:"pincode"`
	FromDate  string `json:"from_date"`
	TimeSlot  string `json:"time_slot"`
}

// RescheduleRequest is the payload of POST /reschedule-booking.
type RescheduleRequest struct {
	GuestCode         string `json:"guest_code"`
	ConfirmedDate     string `json:"confirmed_date"`
	ConfirmedTimeSlot string `json:"confirmed_time_slot"`
	BookingID         string `json:"booking_id"`
}

type RescheduleResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    []any  `json:"data"`
}

type BookingDetails struct {
	Status string `json:"status"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// AvailableSlots is the response of POST /get-available-slots. Slots are
// "HH:MM - HH:MM" ranges.
type AvailableSlots struct {
	Status  bool     `json:"status"`
	Message string   `json:"message"`
	Slots   []string `json:"slots"`
}

// BookingDraft is a serializable snapshot of an in-progress booking or
// reschedule dialog.
type BookingDraft struct {
	Kind         string   `json:"kind"`
	State        string   `json:"state"`
	GuestCode    string   `json:"guest_code"`
	BookingID    string   `json:"booking_id,omitempty"`
	Age          int      `json:"age,omitempty"`
	LocationType string   `json:"location_type,omitempty"`
	Center       string   `json:"center,omitempty"`
	DoorNo       string   `json:"door_no,omitempty"`
	Address      string   `json:"address,omitempty"`
	Pincode      string   `json:"pincode,omitempty"`
	Date         string   `json:"date,omitempty"`
	Slots        []string `json:"slots,omitempty"`
	TimeSlot     string   `json:"time_slot,omitempty"`
}
