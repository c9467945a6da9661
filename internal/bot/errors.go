package bot

import (
	"context"
	"errors"

	"diagdesk/internal/gateway"
	"diagdesk/internal/listing"
	"diagdesk/internal/service"
	"diagdesk/internal/session"
	"diagdesk/internal/workflow"

	"github.com/rs/zerolog"
)

func (b *Bot) getErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *gateway.APIError
	switch {
	case errors.Is(err, session.ErrNotLoggedIn):
		return "🔒 You are not logged in. Use /login <username> <password>."
	case errors.Is(err, session.ErrInvalidCredentials):
		return "❌ Invalid username or password."
	case errors.Is(err, session.ErrCenterForbidden):
		return "⛔ You do not have access to that center."
	case errors.Is(err, workflow.ErrNoSlots):
		return "📭 No slots are available for that date and pincode. Send another date."
	case errors.Is(err, workflow.ErrPastDate):
		return "⚠️ That date is in the past. Send a date from today on."
	case errors.Is(err, workflow.ErrRejected):
		return "❌ The booking system rejected the request: " + err.Error()
	case errors.Is(err, workflow.ErrInvalidAge),
		errors.Is(err, workflow.ErrPincodeRequired),
		errors.Is(err, workflow.ErrDateRequired),
		errors.Is(err, workflow.ErrUnknownSlot),
		errors.Is(err, workflow.ErrFieldReadOnly),
		errors.Is(err, workflow.ErrCenterRequired),
		errors.Is(err, workflow.ErrInvalidLocation),
		errors.Is(err, workflow.ErrTimeSlotRequired),
		errors.Is(err, service.ErrGuestCodeRequired),
		errors.Is(err, service.ErrInvalidMonth):
		return "⚠️ " + err.Error()
	case errors.Is(err, listing.ErrSuperseded):
		return "🔄 The list changed while loading. Send the command again."
	case errors.Is(err, workflow.ErrInvalidTransition):
		return "⚠️ That step is not available right now. Use /cancel to start over."
	case errors.As(err, &apiErr):
		return "❌ The clinic backend is unavailable. Please try again later."
	}

	return "❌ Something went wrong. Please try again later."
}

// replyError logs unexpected failures and sends the user-facing message.
func (b *Bot) replyError(ctx context.Context, chatID int64, err error) {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		l = b.logger
	}
	l.Warn().Err(err).Int64("chat_id", chatID).Msg("request failed")
	b.sendMessage(chatID, b.getErrorMessage(err))
}
