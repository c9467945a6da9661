package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"diagdesk/internal/domain"
	"diagdesk/internal/events"
	"diagdesk/internal/logging"
	"diagdesk/internal/models"

	"github.com/rs/zerolog"
)

// BookingFlow books a new sample-collection slot for a guest.
//
// Home bookings take door number, address and pincode from the user. Clinic
// bookings take them from the selected center and reject manual edits.
type BookingFlow struct {
	*slotPicker

	guestCode    string
	age          int
	locationType string
	center       string
	doorNo       string
	address      string
}

func NewBookingFlow(guestCode string, gw domain.SlotGateway, opts Options, logger *zerolog.Logger) *BookingFlow {
	return &BookingFlow{
		slotPicker:   newSlotPicker(models.DraftKindBooking, gw, opts, logging.Component(logger, "booking_flow")),
		guestCode:    guestCode,
		locationType: models.LocationHome,
	}
}

func (f *BookingFlow) GuestCode() string { return f.guestCode }

func (f *BookingFlow) LocationType() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locationType
}

// SetAge accepts a whole number of years. An empty string clears the age.
func (f *BookingFlow) SetAge(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.guardLocked(ActionEdit); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		f.age = 0
		return nil
	}
	age, err := strconv.Atoi(s)
	if err != nil || age < 1 || age > 120 {
		return ErrInvalidAge
	}
	f.age = age
	return nil
}

// SetLocationType switches between Home and Clinic. Fetched slots are dropped.
func (f *BookingFlow) SetLocationType(loc string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.guardLocked(ActionEdit); err != nil {
		return err
	}
	switch {
	case strings.EqualFold(loc, models.LocationHome):
		loc = models.LocationHome
	case strings.EqualFold(loc, models.LocationClinic):
		loc = models.LocationClinic
	default:
		return ErrInvalidLocation
	}
	if loc != f.locationType {
		f.locationType = loc
		f.resetSlotsLocked()
	}
	return nil
}

// SelectCenter picks a clinic and fills the address fields from its details.
func (f *BookingFlow) SelectCenter(ctx context.Context, center string) error {
	f.mu.Lock()
	if err := f.guardLocked(ActionEdit); err != nil {
		f.mu.Unlock()
		return err
	}
	if f.locationType != models.LocationClinic {
		f.mu.Unlock()
		return fmt.Errorf("%w: location is %s", ErrInvalidLocation, f.locationType)
	}
	f.mu.Unlock()

	details, err := f.gateway.CenterDetails(ctx, center)
	if err != nil {
		return fmt.Errorf("center details: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.center = center
	f.doorNo = details.DoorNo
	f.address = details.Address
	f.setPincodeLocked(details.PinCode)
	return nil
}

func (f *BookingFlow) SetDoorNo(v string) error {
	return f.editAddress(func() { f.doorNo = strings.TrimSpace(v) })
}

func (f *BookingFlow) SetAddress(v string) error {
	return f.editAddress(func() { f.address = strings.TrimSpace(v) })
}

func (f *BookingFlow) SetPincode(v string) error {
	return f.editAddress(func() { f.setPincodeLocked(v) })
}

func (f *BookingFlow) editAddress(apply func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.guardLocked(ActionEdit); err != nil {
		return err
	}
	if f.locationType == models.LocationClinic {
		return ErrFieldReadOnly
	}
	apply()
	return nil
}

// FetchSlots requires a selected center for clinic bookings in addition to pincode and date.
func (f *BookingFlow) FetchSlots(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	needCenter := f.locationType == models.LocationClinic && f.center == ""
	f.mu.Unlock()
	if needCenter {
		return nil, ErrCenterRequired
	}
	return f.slotPicker.FetchSlots(ctx)
}

// Submit sends the booking. It makes no call unless a slot is selected.
func (f *BookingFlow) Submit(ctx context.Context) (*models.MessageResponse, error) {
	if err := f.beginSubmit(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	date := formatDay(f.date)
	req := models.NewSlotBooking{
		GuestCode: f.guestCode,
		Date:      date,
		Age:       f.age,
		Address:   f.address,
		DoorNo:    f.doorNo,
		Pincode:   f.pincode,
		FromDate:  date,
		TimeSlot:  f.timeSlot,
	}
	location := f.locationType
	f.mu.Unlock()

	resp, err := f.gateway.CreateSlotBookings(ctx, []models.NewSlotBooking{req})
	if err != nil {
		err = fmt.Errorf("create slot booking: %w", err)
	}

	payload := events.BookingPayload{
		GuestCode: req.GuestCode,
		Date:      req.Date,
		TimeSlot:  req.TimeSlot,
		Location:  location,
		Pincode:   req.Pincode,
	}
	if resp != nil {
		payload.Message = resp.Message
	}
	if err := f.finishSubmit(ctx, err, events.EventSlotBooked, payload); err != nil {
		return nil, err
	}
	return resp, nil
}

// Draft snapshots the flow so a dialog can continue in a later request.
func (f *BookingFlow) Draft() models.BookingDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := models.BookingDraft{
		Kind:         models.DraftKindBooking,
		GuestCode:    f.guestCode,
		Age:          f.age,
		LocationType: f.locationType,
		Center:       f.center,
		DoorNo:       f.doorNo,
		Address:      f.address,
	}
	f.snapshotLocked(&d)
	return d
}

// RestoreBookingFlow rebuilds a flow from Draft output.
func RestoreBookingFlow(d models.BookingDraft, gw domain.SlotGateway, opts Options, logger *zerolog.Logger) (*BookingFlow, error) {
	if d.Kind != models.DraftKindBooking {
		return nil, fmt.Errorf("draft kind %q is not a booking", d.Kind)
	}
	f := NewBookingFlow(d.GuestCode, gw, opts, logger)
	f.mu.Lock()
	defer f.mu.Unlock()

	if d.LocationType != "" {
		f.locationType = d.LocationType
	}
	f.age = d.Age
	f.center = d.Center
	f.doorNo = d.DoorNo
	f.address = d.Address
	if err := f.restoreLocked(d); err != nil {
		return nil, err
	}
	return f, nil
}
