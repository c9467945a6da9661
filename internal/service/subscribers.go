package service

import (
	"diagdesk/internal/events"
	"diagdesk/internal/logging"
	"diagdesk/internal/metrics"

	"github.com/rs/zerolog"
)

// RegisterSubscribers counts session events and logs submitted bookings.
func RegisterSubscribers(bus *events.EventBus, logger *zerolog.Logger) {
	log := logging.Component(logger, "events")

	onSession := func(e *events.Event) error {
		var p events.SessionPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		metrics.IncSession(e.Type)
		log.Info().Str("event", e.Type).Str("username", p.Username).Msg("session changed")
		return nil
	}
	bus.Subscribe(events.EventSessionLogin, onSession)
	bus.Subscribe(events.EventSessionLogout, onSession)

	onBooking := func(e *events.Event) error {
		var p events.BookingPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		log.Info().
			Str("event", e.Type).
			Str("guest_code", p.GuestCode).
			Str("booking_id", p.BookingID).
			Str("date", p.Date).
			Str("time_slot", p.TimeSlot).
			Msg("booking submitted")
		return nil
	}
	bus.Subscribe(events.EventSlotBooked, onBooking)
	bus.Subscribe(events.EventBookingRescheduled, onBooking)
}
