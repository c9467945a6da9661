package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"diagdesk/internal/domain"
	"diagdesk/internal/metrics"
	"diagdesk/internal/models"

	"github.com/rs/zerolog"
)

// slotPicker is the fetch/select/submit machinery shared by both flows.
type slotPicker struct {
	kind    string
	gateway domain.SlotGateway
	opts    Options
	logger  *zerolog.Logger

	mu       sync.Mutex
	state    State
	pincode  string
	date     time.Time
	slots    []string
	timeSlot string
}

func newSlotPicker(kind string, gw domain.SlotGateway, opts Options, logger *zerolog.Logger) *slotPicker {
	return &slotPicker{
		kind:    kind,
		gateway: gw,
		opts:    opts.withDefaults(),
		logger:  logger,
		state:   StateCollecting,
	}
}

func (p *slotPicker) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Slots returns the last fetched slot list.
func (p *slotPicker) Slots() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.slots...)
}

func (p *slotPicker) TimeSlot() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeSlot
}

func (p *slotPicker) Pincode() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pincode
}

// Date returns the chosen day formatted yyyy-MM-dd, or "" when unset.
func (p *slotPicker) Date() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return formatDay(p.date)
}

// SetDate picks the appointment day. Days before today are rejected.
func (p *slotPicker) SetDate(day time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.guardLocked(ActionEdit); err != nil {
		return err
	}
	if day.IsZero() {
		return ErrDateRequired
	}
	day = models.Day(day)
	if day.Before(models.Day(p.opts.Now())) {
		return ErrPastDate
	}
	if !day.Equal(p.date) {
		p.date = day
		p.resetSlotsLocked()
	}
	return nil
}

// SetDateString parses s (yyyy-MM-dd or any accepted layout) and calls SetDate.
func (p *slotPicker) SetDateString(s string) error {
	day, ok := models.ParseDate(s)
	if !ok {
		return fmt.Errorf("%w: cannot parse %q", ErrDateRequired, s)
	}
	return p.SetDate(day)
}

// setPincodeLocked must be called with mu held.
func (p *slotPicker) setPincodeLocked(pin string) {
	pin = strings.TrimSpace(pin)
	if pin != p.pincode {
		p.pincode = pin
		p.resetSlotsLocked()
	}
}

// resetSlotsLocked drops fetched slots after an input they depend on changed.
func (p *slotPicker) resetSlotsLocked() {
	p.slots = nil
	p.timeSlot = ""
	p.state = StateCollecting
}

func (p *slotPicker) guardLocked(action Action) error {
	if !ValidTransition(action, p.state) {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, p.state)
	}
	return nil
}

// FetchSlots asks the backend for free slots. Missing inputs fail before any call.
func (p *slotPicker) FetchSlots(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	if p.pincode == "" {
		p.mu.Unlock()
		return nil, ErrPincodeRequired
	}
	if p.date.IsZero() {
		p.mu.Unlock()
		return nil, ErrDateRequired
	}
	if err := p.guardLocked(ActionFetch); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.state = StateFetchingSlots
	p.slots = nil
	p.timeSlot = ""
	pincode, date := p.pincode, formatDay(p.date)
	p.mu.Unlock()

	resp, err := p.gateway.AvailableSlots(ctx, pincode, date)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.state = StateCollecting
		p.logger.Warn().Err(err).Str("pincode", pincode).Str("date", date).Msg("slot fetch failed")
		return nil, fmt.Errorf("fetch slots: %w", err)
	}
	if !resp.Status || len(resp.Slots) == 0 {
		p.state = StateCollecting
		return nil, ErrNoSlots
	}

	p.slots = append([]string(nil), resp.Slots...)
	p.state = StateSlotsReady
	return append([]string(nil), p.slots...), nil
}

// SelectSlot chooses one of the fetched slots.
func (p *slotPicker) SelectSlot(slot string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.guardLocked(ActionSelectSlot); err != nil {
		return err
	}
	want := NormalizeSlot(slot)
	for _, s := range p.slots {
		if NormalizeSlot(s) == want {
			p.timeSlot = want
			p.state = StateSlotSelected
			return nil
		}
	}
	return ErrUnknownSlot
}

// beginSubmit validates and moves to submitting. Validation errors leave the state unchanged.
func (p *slotPicker) beginSubmit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timeSlot == "" {
		return ErrTimeSlotRequired
	}
	if err := p.guardLocked(ActionSubmit); err != nil {
		return err
	}
	p.state = StateSubmitting
	return nil
}

// finishSubmit records the outcome and, on success, runs the settle/refresh/close sequence.
func (p *slotPicker) finishSubmit(ctx context.Context, err error, event string, payload interface{}) error {
	p.mu.Lock()
	if err != nil {
		p.state = StateFailed
	} else {
		p.state = StateSucceeded
	}
	p.mu.Unlock()

	metrics.IncBooking(p.kind, err == nil)
	if err != nil {
		p.logger.Warn().Err(err).Str("kind", p.kind).Msg("submission failed")
		return err
	}

	if p.opts.Publisher != nil {
		if pubErr := p.opts.Publisher.PublishJSON(event, payload); pubErr != nil {
			p.logger.Warn().Err(pubErr).Str("event", event).Msg("publish failed")
		}
	}

	if err := p.opts.Sleep(ctx, p.opts.SettleDelay); err != nil {
		return nil
	}
	if p.opts.Refresh != nil {
		if err := p.opts.Refresh(ctx); err != nil {
			p.logger.Warn().Err(err).Msg("refresh after submission failed")
		}
	}
	if err := p.opts.Sleep(ctx, p.opts.CloseDelay); err != nil {
		return nil
	}
	if p.opts.OnClose != nil {
		p.opts.OnClose()
	}
	return nil
}

func (p *slotPicker) snapshotLocked(d *models.BookingDraft) {
	d.State = string(p.state)
	d.Pincode = p.pincode
	d.Date = formatDay(p.date)
	d.Slots = append([]string(nil), p.slots...)
	d.TimeSlot = p.timeSlot
}

// restoreLocked loads picker fields from a draft. In-flight states cannot be
// resumed: a fetch restarts from collecting and a submission is treated as failed.
func (p *slotPicker) restoreLocked(d models.BookingDraft) error {
	state := State(d.State)
	if state == "" {
		state = StateCollecting
	}
	if !knownState(state) {
		return fmt.Errorf("unknown draft state %q", d.State)
	}
	switch state {
	case StateFetchingSlots:
		state = StateCollecting
	case StateSubmitting:
		state = StateFailed
	}

	p.pincode = d.Pincode
	if d.Date != "" {
		day, ok := models.ParseDate(d.Date)
		if !ok {
			return fmt.Errorf("invalid draft date %q", d.Date)
		}
		p.date = day
	}
	p.slots = append([]string(nil), d.Slots...)
	p.timeSlot = d.TimeSlot
	if p.timeSlot == "" && (state == StateSlotSelected || state == StateFailed) {
		if len(p.slots) > 0 {
			state = StateSlotsReady
		} else {
			state = StateCollecting
		}
	}
	p.state = state
	return nil
}

// NormalizeSlot rewrites "09:00-10:00" and similar to "09:00 - 10:00".
func NormalizeSlot(slot string) string {
	parts := strings.SplitN(slot, "-", 2)
	if len(parts) != 2 {
		return strings.TrimSpace(slot)
	}
	return strings.TrimSpace(parts[0]) + " - " + strings.TrimSpace(parts[1])
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(models.DateLayoutISO)
}
