package service

import (
	"context"
	"fmt"

	"diagdesk/internal/models"
	"diagdesk/internal/session"
	"diagdesk/internal/workflow"
)

// flowOptions wires a booking dialog to this dashboard: after a successful
// submission the guest list is refetched and a Sheets resync is queued.
func (d *Dashboard) flowOptions(onClose func()) workflow.Options {
	opts := workflow.DefaultOptions()
	opts.SettleDelay = d.booking.SettleDelay()
	opts.CloseDelay = d.booking.CloseDelay()
	opts.Publisher = d.publisher
	opts.OnClose = onClose
	opts.Refresh = d.afterBooking
	return opts
}

func (d *Dashboard) afterBooking(ctx context.Context) error {
	if err := d.RefreshGuests(ctx); err != nil {
		return err
	}
	if d.syncer == nil {
		return nil
	}
	d.mu.Lock()
	centers := append([]string(nil), d.guestCenters...)
	d.mu.Unlock()
	if err := d.syncer.EnqueueGuestSync(ctx, centers); err != nil {
		d.logger.Warn().Err(err).Msg("sheets resync not queued")
	}
	return nil
}

func (d *Dashboard) NewBooking(guestCode string, onClose func()) (*workflow.BookingFlow, error) {
	if guestCode == "" {
		return nil, ErrGuestCodeRequired
	}
	if !d.Session.IsAuthenticated() {
		return nil, session.ErrNotLoggedIn
	}
	return workflow.NewBookingFlow(guestCode, d.gateway, d.flowOptions(onClose), d.logger), nil
}

func (d *Dashboard) NewReschedule(guestCode, bookingID string, onClose func()) (*workflow.RescheduleFlow, error) {
	if guestCode == "" {
		return nil, ErrGuestCodeRequired
	}
	if !d.Session.IsAuthenticated() {
		return nil, session.ErrNotLoggedIn
	}
	return workflow.NewRescheduleFlow(guestCode, bookingID, d.gateway, d.flowOptions(onClose), d.logger), nil
}

func (d *Dashboard) RestoreBooking(draft models.BookingDraft, onClose func()) (*workflow.BookingFlow, error) {
	if !d.Session.IsAuthenticated() {
		return nil, session.ErrNotLoggedIn
	}
	return workflow.RestoreBookingFlow(draft, d.gateway, d.flowOptions(onClose), d.logger)
}

func (d *Dashboard) RestoreReschedule(draft models.BookingDraft, onClose func()) (*workflow.RescheduleFlow, error) {
	if !d.Session.IsAuthenticated() {
		return nil, session.ErrNotLoggedIn
	}
	return workflow.RestoreRescheduleFlow(draft, d.gateway, d.flowOptions(onClose), d.logger)
}

// Centers lists the clinics offered in the booking dialog.
func (d *Dashboard) Centers(ctx context.Context) ([]string, error) {
	centers, err := d.Session.AllowedCenters(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(centers))
	for _, c := range centers {
		if c != models.AdminCenter {
			out = append(out, c)
		}
	}
	return out, nil
}

// Slots is the standalone slot lookup used by the facade.
func (d *Dashboard) Slots(ctx context.Context, pincode, date string) ([]string, error) {
	if !d.Session.IsAuthenticated() {
		return nil, session.ErrNotLoggedIn
	}
	if pincode == "" {
		return nil, workflow.ErrPincodeRequired
	}
	if date == "" {
		return nil, workflow.ErrDateRequired
	}
	resp, err := d.gateway.AvailableSlots(ctx, pincode, date)
	if err != nil {
		return nil, fmt.Errorf("available slots: %w", err)
	}
	if !resp.Status || len(resp.Slots) == 0 {
		return nil, workflow.ErrNoSlots
	}
	return resp.Slots, nil
}

func (d *Dashboard) CenterDetails(ctx context.Context, center string) (*models.CenterDetails, error) {
	if !d.Session.IsAuthenticated() {
		return nil, session.ErrNotLoggedIn
	}
	return d.gateway.CenterDetails(ctx, center)
}
