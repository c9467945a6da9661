package bot

import (
	"context"
	"strconv"
	"strings"

	"diagdesk/internal/listing"
	"diagdesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data prefixes.
const (
	cbGuestsPage  = "guests:"
	cbGuest       = "guest:"
	cbBook        = "book:"
	cbLocation    = "loc:"
	cbCenter      = "center:"
	cbSlot        = "slot:"
	cbReportsPage = "reports:"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	// Answer right away so the client stops showing the spinner.
	if err := b.tgService.AnswerCallback(callback.ID, ""); err != nil {
		b.logger.Debug().Err(err).Msg("answer callback failed")
	}
	if callback.Message == nil || callback.Message.Chat == nil {
		return
	}
	chatID := callback.Message.Chat.ID
	data := callback.Data

	switch {
	case strings.HasPrefix(data, cbGuestsPage):
		pageStr, status, _ := strings.Cut(strings.TrimPrefix(data, cbGuestsPage), ":")
		page, _ := strconv.Atoi(pageStr)
		if d, ok := b.dashboard(ctx, chatID); ok {
			b.sendGuestPage(ctx, chatID, d, listing.ParseStatus(status), page, "")
		}

	case strings.HasPrefix(data, cbGuest):
		b.handleGuestDetail(ctx, chatID, strings.TrimPrefix(data, cbGuest))

	case strings.HasPrefix(data, cbBook):
		b.startBooking(ctx, chatID, strings.TrimPrefix(data, cbBook))

	case strings.HasPrefix(data, cbReportsPage):
		page, _ := strconv.Atoi(strings.TrimPrefix(data, cbReportsPage))
		if d, ok := b.dashboard(ctx, chatID); ok {
			b.sendReportPage(ctx, chatID, d, page)
		}

	case strings.HasPrefix(data, cbLocation), strings.HasPrefix(data, cbCenter), strings.HasPrefix(data, cbSlot):
		b.handleDialogCallback(ctx, chatID, data)

	default:
		b.logger.Debug().Str("data", data).Msg("unknown callback")
	}
}

// handleDialogCallback applies a button press to the open dialog, ignoring
// presses that belong to an earlier step.
func (b *Bot) handleDialogCallback(ctx context.Context, chatID int64, data string) {
	state, err := b.stateService.GetUserState(ctx, chatID)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	if state == nil {
		b.replyError(ctx, chatID, errNoDialog)
		return
	}

	step := state.CurrentStep
	switch {
	case strings.HasPrefix(data, cbLocation) && step == models.StateBookingLocation:
		b.onBookingLocation(ctx, chatID, state, strings.TrimPrefix(data, cbLocation))
	case strings.HasPrefix(data, cbCenter) && step == models.StateBookingCenter:
		b.onBookingCenter(ctx, chatID, state, strings.TrimPrefix(data, cbCenter))
	case strings.HasPrefix(data, cbSlot) && (step == models.StateBookingSlot || step == models.StateRescheduleSlot):
		index, err := strconv.Atoi(strings.TrimPrefix(data, cbSlot))
		if err != nil {
			return
		}
		if step == models.StateBookingSlot {
			b.onBookingSlot(ctx, chatID, state, index)
		} else {
			b.onRescheduleSlot(ctx, chatID, state, index)
		}
	default:
		b.sendMessage(chatID, "That button is no longer active.")
	}
}
