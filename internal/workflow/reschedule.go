package workflow

import (
	"context"
	"fmt"
	"strings"

	"diagdesk/internal/domain"
	"diagdesk/internal/events"
	"diagdesk/internal/logging"
	"diagdesk/internal/models"

	"github.com/rs/zerolog"
)

// RescheduleFlow moves an existing booking to a new date and slot.
type RescheduleFlow struct {
	*slotPicker

	guestCode string
	bookingID string
}

func NewRescheduleFlow(guestCode, bookingID string, gw domain.SlotGateway, opts Options, logger *zerolog.Logger) *RescheduleFlow {
	return &RescheduleFlow{
		slotPicker: newSlotPicker(models.DraftKindReschedule, gw, opts, logging.Component(logger, "reschedule_flow")),
		guestCode:  guestCode,
		bookingID:  bookingID,
	}
}

func (f *RescheduleFlow) GuestCode() string { return f.guestCode }
func (f *RescheduleFlow) BookingID() string { return f.bookingID }

func (f *RescheduleFlow) SetPincode(v string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.guardLocked(ActionEdit); err != nil {
		return err
	}
	f.setPincodeLocked(v)
	return nil
}

// Submit sends the reschedule request. A response whose status reads as a
// failure is reported as ErrRejected.
func (f *RescheduleFlow) Submit(ctx context.Context) (*models.RescheduleResponse, error) {
	if err := f.beginSubmit(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	req := models.RescheduleRequest{
		GuestCode:         f.guestCode,
		ConfirmedDate:     formatDay(f.date),
		ConfirmedTimeSlot: f.timeSlot,
		BookingID:         f.bookingID,
	}
	pincode := f.pincode
	f.mu.Unlock()

	resp, err := f.gateway.RescheduleBooking(ctx, req)
	switch {
	case err != nil:
		err = fmt.Errorf("reschedule booking: %w", err)
	case rejected(resp.Status):
		err = fmt.Errorf("%w: %s", ErrRejected, resp.Message)
	}

	payload := events.BookingPayload{
		GuestCode: req.GuestCode,
		BookingID: req.BookingID,
		Date:      req.ConfirmedDate,
		TimeSlot:  req.ConfirmedTimeSlot,
		Pincode:   pincode,
	}
	if resp != nil {
		payload.Message = resp.Message
	}
	if err := f.finishSubmit(ctx, err, events.EventBookingRescheduled, payload); err != nil {
		return nil, err
	}
	return resp, nil
}

func rejected(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "error", "failed", "failure", "false":
		return true
	}
	return false
}

func (f *RescheduleFlow) Draft() models.BookingDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := models.BookingDraft{
		Kind:      models.DraftKindReschedule,
		GuestCode: f.guestCode,
		BookingID: f.bookingID,
	}
	f.snapshotLocked(&d)
	return d
}

func RestoreRescheduleFlow(d models.BookingDraft, gw domain.SlotGateway, opts Options, logger *zerolog.Logger) (*RescheduleFlow, error) {
	if d.Kind != models.DraftKindReschedule {
		return nil, fmt.Errorf("draft kind %q is not a reschedule", d.Kind)
	}
	f := NewRescheduleFlow(d.GuestCode, d.BookingID, gw, opts, logger)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.restoreLocked(d); err != nil {
		return nil, err
	}
	return f, nil
}
