package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"diagdesk/internal/models"
	"diagdesk/internal/service"
	"diagdesk/internal/workflow"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var errNoDialog = errors.New("no booking dialog is open")

const (
	promptAddress = "🏠 Send the home address as: door no; street and area; pincode"
	promptAge     = "🎂 Send the guest's age (1–120), or - to skip."
	promptDate    = "📅 Send the appointment date as YYYY-MM-DD."
	promptPincode = "📍 Send the pincode for the new slot."
)

func (b *Bot) startBooking(ctx context.Context, chatID int64, guestCode string) {
	d, ok := b.dashboard(ctx, chatID)
	if !ok {
		return
	}
	flow, err := d.NewBooking(guestCode, nil)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	if !b.saveDraft(ctx, chatID, models.StateBookingLocation, flow.Draft()) {
		return
	}
	b.sendKeyboard(chatID, fmt.Sprintf("📅 Booking for %s\nWhere will the sample be collected?", guestCode), [][]tgbotapi.InlineKeyboardButton{{
		tgbotapi.NewInlineKeyboardButtonData("🏠 Home", cbLocation+models.LocationHome),
		tgbotapi.NewInlineKeyboardButtonData("🏥 Clinic", cbLocation+models.LocationClinic),
	}})
}

func (b *Bot) startReschedule(ctx context.Context, chatID int64, guestCode, bookingID string) {
	d, ok := b.dashboard(ctx, chatID)
	if !ok {
		return
	}
	flow, err := d.NewReschedule(guestCode, bookingID, nil)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	if b.saveDraft(ctx, chatID, models.StateReschedulePin, flow.Draft()) {
		b.sendMessage(chatID, fmt.Sprintf("🔁 Rescheduling booking %s of %s\n%s", bookingID, guestCode, promptPincode))
	}
}

// openBooking restores the chat's booking dialog from its saved draft.
func (b *Bot) openBooking(ctx context.Context, chatID int64, state *models.UserState) (*workflow.BookingFlow, *service.Dashboard, bool) {
	draft, ok := draftOf(state, models.DraftKindBooking)
	if !ok {
		b.replyError(ctx, chatID, errNoDialog)
		return nil, nil, false
	}
	d, ok := b.dashboard(ctx, chatID)
	if !ok {
		return nil, nil, false
	}
	flow, err := d.RestoreBooking(*draft, nil)
	if err != nil {
		b.replyError(ctx, chatID, err)
		b.clearDialog(ctx, chatID)
		return nil, nil, false
	}
	return flow, d, true
}

func (b *Bot) openReschedule(ctx context.Context, chatID int64, state *models.UserState) (*workflow.RescheduleFlow, bool) {
	draft, ok := draftOf(state, models.DraftKindReschedule)
	if !ok {
		b.replyError(ctx, chatID, errNoDialog)
		return nil, false
	}
	d, ok := b.dashboard(ctx, chatID)
	if !ok {
		return nil, false
	}
	flow, err := d.RestoreReschedule(*draft, nil)
	if err != nil {
		b.replyError(ctx, chatID, err)
		b.clearDialog(ctx, chatID)
		return nil, false
	}
	return flow, true
}

func draftOf(state *models.UserState, kind string) (*models.BookingDraft, bool) {
	if state == nil {
		return nil, false
	}
	d, ok := state.Draft()
	if !ok || d.Kind != kind {
		return nil, false
	}
	return d, true
}

func (b *Bot) onBookingLocation(ctx context.Context, chatID int64, state *models.UserState, location string) {
	flow, d, ok := b.openBooking(ctx, chatID, state)
	if !ok {
		return
	}
	if err := flow.SetLocationType(location); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}

	if flow.LocationType() == models.LocationHome {
		if b.saveDraft(ctx, chatID, models.StateBookingAddress, flow.Draft()) {
			b.sendMessage(chatID, promptAddress)
		}
		return
	}

	centers, err := d.Centers(ctx)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(centers))
	for _, c := range centers {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{tgbotapi.NewInlineKeyboardButtonData(c, cbCenter+c)})
	}
	if b.saveDraft(ctx, chatID, models.StateBookingCenter, flow.Draft()) {
		b.sendKeyboard(chatID, "🏥 Choose the clinic:", rows)
	}
}

func (b *Bot) onBookingCenter(ctx context.Context, chatID int64, state *models.UserState, center string) {
	flow, _, ok := b.openBooking(ctx, chatID, state)
	if !ok {
		return
	}
	if err := flow.SelectCenter(ctx, center); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	draft := flow.Draft()
	if b.saveDraft(ctx, chatID, models.StateBookingAge, draft) {
		b.sendMessage(chatID, fmt.Sprintf("🏥 %s\n%s %s, %s\n\n%s", center, draft.DoorNo, draft.Address, draft.Pincode, promptAge))
	}
}

func (b *Bot) onBookingAddress(ctx context.Context, chatID int64, state *models.UserState, text string) {
	parts := strings.Split(text, ";")
	if len(parts) != 3 {
		b.sendMessage(chatID, promptAddress)
		return
	}
	flow, _, ok := b.openBooking(ctx, chatID, state)
	if !ok {
		return
	}
	for i, set := range []func(string) error{flow.SetDoorNo, flow.SetAddress, flow.SetPincode} {
		if err := set(strings.TrimSpace(parts[i])); err != nil {
			b.replyError(ctx, chatID, err)
			return
		}
	}
	if b.saveDraft(ctx, chatID, models.StateBookingAge, flow.Draft()) {
		b.sendMessage(chatID, promptAge)
	}
}

func (b *Bot) onBookingAge(ctx context.Context, chatID int64, state *models.UserState, text string) {
	flow, _, ok := b.openBooking(ctx, chatID, state)
	if !ok {
		return
	}
	if text == "-" {
		text = ""
	}
	if err := flow.SetAge(text); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	if b.saveDraft(ctx, chatID, models.StateBookingDate, flow.Draft()) {
		b.sendMessage(chatID, promptDate)
	}
}

func (b *Bot) onBookingDate(ctx context.Context, chatID int64, state *models.UserState, text string) {
	flow, _, ok := b.openBooking(ctx, chatID, state)
	if !ok {
		return
	}
	if err := flow.SetDateString(text); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	slots, err := flow.FetchSlots(ctx)
	if err != nil {
		// The date stays editable; the draft keeps the pincode and address.
		b.saveDraft(ctx, chatID, models.StateBookingDate, flow.Draft())
		b.replyError(ctx, chatID, err)
		return
	}
	if b.saveDraft(ctx, chatID, models.StateBookingSlot, flow.Draft()) {
		b.sendKeyboard(chatID, fmt.Sprintf("🕘 Slots on %s:", flow.Date()), slotButtons(slots))
	}
}

func (b *Bot) onBookingSlot(ctx context.Context, chatID int64, state *models.UserState, index int) {
	flow, _, ok := b.openBooking(ctx, chatID, state)
	if !ok {
		return
	}
	slots := flow.Slots()
	if index < 0 || index >= len(slots) {
		b.replyError(ctx, chatID, workflow.ErrUnknownSlot)
		return
	}
	if err := flow.SelectSlot(slots[index]); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	if !b.saveDraft(ctx, chatID, models.StateBookingSlot, flow.Draft()) {
		return
	}

	resp, err := flow.Submit(ctx)
	if err != nil {
		b.saveDraft(ctx, chatID, models.StateBookingSlot, flow.Draft())
		b.replyError(ctx, chatID, err)
		b.sendKeyboard(chatID, "Tap a slot to try again, or /cancel.", slotButtons(slots))
		return
	}
	b.clearDialog(ctx, chatID)
	b.sendMessage(chatID, fmt.Sprintf("✅ %s\n%s · %s · %s", orDash(resp.Message), flow.GuestCode(), flow.Date(), flow.TimeSlot()))
}

func (b *Bot) onReschedulePincode(ctx context.Context, chatID int64, state *models.UserState, text string) {
	flow, ok := b.openReschedule(ctx, chatID, state)
	if !ok {
		return
	}
	if err := flow.SetPincode(text); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	if b.saveDraft(ctx, chatID, models.StateRescheduleDate, flow.Draft()) {
		b.sendMessage(chatID, promptDate)
	}
}

func (b *Bot) onRescheduleDate(ctx context.Context, chatID int64, state *models.UserState, text string) {
	flow, ok := b.openReschedule(ctx, chatID, state)
	if !ok {
		return
	}
	if err := flow.SetDateString(text); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	slots, err := flow.FetchSlots(ctx)
	if err != nil {
		b.saveDraft(ctx, chatID, models.StateRescheduleDate, flow.Draft())
		b.replyError(ctx, chatID, err)
		return
	}
	if b.saveDraft(ctx, chatID, models.StateRescheduleSlot, flow.Draft()) {
		b.sendKeyboard(chatID, fmt.Sprintf("🕘 Slots on %s:", flow.Date()), slotButtons(slots))
	}
}

func (b *Bot) onRescheduleSlot(ctx context.Context, chatID int64, state *models.UserState, index int) {
	flow, ok := b.openReschedule(ctx, chatID, state)
	if !ok {
		return
	}
	slots := flow.Slots()
	if index < 0 || index >= len(slots) {
		b.replyError(ctx, chatID, workflow.ErrUnknownSlot)
		return
	}
	if err := flow.SelectSlot(slots[index]); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}

	resp, err := flow.Submit(ctx)
	if err != nil {
		b.saveDraft(ctx, chatID, models.StateRescheduleSlot, flow.Draft())
		b.replyError(ctx, chatID, err)
		b.sendKeyboard(chatID, "Tap a slot to try again, or /cancel.", slotButtons(slots))
		return
	}
	b.clearDialog(ctx, chatID)
	b.sendMessage(chatID, fmt.Sprintf("✅ %s\n%s · %s · %s", orDash(resp.Message), flow.BookingID(), flow.Date(), flow.TimeSlot()))
}

func (b *Bot) saveDraft(ctx context.Context, chatID int64, step string, draft models.BookingDraft) bool {
	if err := b.stateService.SaveDraft(ctx, chatID, step, draft); err != nil {
		b.replyError(ctx, chatID, err)
		return false
	}
	return true
}

func (b *Bot) clearDialog(ctx context.Context, chatID int64) {
	if err := b.stateService.ClearUserState(ctx, chatID); err != nil {
		b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("clear dialog state failed")
	}
}
