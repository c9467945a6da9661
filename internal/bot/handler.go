package bot

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"diagdesk/internal/analytics"
	"diagdesk/internal/listing"
	"diagdesk/internal/models"
	"diagdesk/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = `🩺 Diagnostics dashboard

/login <username> <password> – sign in
/logout – sign out
/guests [all|closed|pending] [page] – guest list
/find <text> – search guests by name or code
/guest <code> – bookings of a guest
/items <phone> – billed items of a guest
/stats [center] – revenue and test summary
/reports [page] – lab reports of the last week
/export – guest list as Excel
/dashboard – dashboard as Excel
/monthly <month> <year> <center> – monthly guest summary
/refresh – recompute booking statuses
/book <code> – book a home or clinic slot
/reschedule <code> <booking id> – move a booking
/cancel – abandon the current dialog`

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	cmd, args := parseCommand(msg.Text)
	if cmd == "" {
		b.handleDialogInput(ctx, chatID, strings.TrimSpace(msg.Text))
		return
	}

	switch cmd {
	case "start", "help":
		b.sendMessage(chatID, helpText)
	case "login":
		b.handleLogin(ctx, msg, args)
	case "logout":
		b.handleLogout(ctx, chatID)
	case "guests":
		b.handleGuests(ctx, chatID, args)
	case "find":
		if d, ok := b.dashboard(ctx, chatID); ok {
			b.sendGuestPage(ctx, chatID, d, listing.StatusAll, 1, strings.Join(args, " "))
		}
	case "guest":
		b.handleGuestDetail(ctx, chatID, strings.Join(args, ""))
	case "items":
		b.handleItems(ctx, chatID, args)
	case "stats":
		b.handleStats(ctx, chatID, args)
	case "reports":
		if d, ok := b.dashboard(ctx, chatID); ok {
			b.sendReportPage(ctx, chatID, d, pageArg(args, 0))
		}
	case "export":
		b.handleExportGuests(ctx, chatID)
	case "dashboard":
		b.handleExportDashboard(ctx, chatID, args)
	case "monthly":
		b.handleMonthly(ctx, chatID, args)
	case "refresh":
		b.handleRefresh(ctx, chatID)
	case "book":
		b.startBooking(ctx, chatID, strings.Join(args, ""))
	case "reschedule":
		if len(args) != 2 {
			b.sendMessage(chatID, "Usage: /reschedule <guest code> <booking id>")
			return
		}
		b.startReschedule(ctx, chatID, args[0], args[1])
	case "cancel":
		b.clearDialog(ctx, chatID)
		b.sendMessage(chatID, "Cancelled.")
	default:
		b.sendMessage(chatID, "Unknown command. Send /help for the list.")
	}
}

func (b *Bot) handleLogin(ctx context.Context, msg *tgbotapi.Message, args []string) {
	chatID := msg.Chat.ID
	// The password should not stay in the chat history.
	if _, err := b.tgService.Request(tgbotapi.NewDeleteMessage(chatID, msg.MessageID)); err != nil {
		b.logger.Debug().Err(err).Msg("could not delete login message")
	}
	if len(args) != 2 {
		b.sendMessage(chatID, "Usage: /login <username> <password>")
		return
	}

	d, err := b.workspaces.Login(ctx, workspaceID(chatID), args[0], args[1])
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	sess := d.Session.Current()
	b.sendMessage(chatID, fmt.Sprintf("✅ Logged in as %s.\nCenters: %s", sess.Username, strings.Join(sess.Centers, ", ")))
}

func (b *Bot) handleLogout(ctx context.Context, chatID int64) {
	b.clearDialog(ctx, chatID)
	if err := b.workspaces.Logout(ctx, workspaceID(chatID)); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.sendMessage(chatID, "👋 Logged out.")
}

func (b *Bot) handleGuests(ctx context.Context, chatID int64, args []string) {
	d, ok := b.dashboard(ctx, chatID)
	if !ok {
		return
	}
	status := listing.StatusAll
	if len(args) > 0 {
		if _, err := strconv.Atoi(args[0]); err != nil {
			status = listing.ParseStatus(args[0])
			args = args[1:]
		}
	}
	b.sendGuestPage(ctx, chatID, d, status, pageArg(args, 0), "")
}

func (b *Bot) handleGuestDetail(ctx context.Context, chatID int64, code string) {
	d, ok := b.dashboard(ctx, chatID)
	if !ok {
		return
	}
	detail, err := d.GuestDetail(ctx, code)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.sendKeyboard(chatID, formatBookings(detail), [][]tgbotapi.InlineKeyboardButton{{
		tgbotapi.NewInlineKeyboardButtonData("📅 Book a slot", cbBook+detail.GuestCode),
	}})
}

func (b *Bot) handleItems(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		b.sendMessage(chatID, "Usage: /items <phone>")
		return
	}
	d, ok := b.dashboard(ctx, chatID)
	if !ok {
		return
	}
	items, err := d.GuestItems(ctx, args[0])
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.sendMessage(chatID, formatItems(items))
}

func (b *Bot) handleStats(ctx context.Context, chatID int64, args []string) {
	d, ok := b.dashboard(ctx, chatID)
	if !ok {
		return
	}
	summary, err := d.Analytics(ctx, analytics.Filter{Centers: centerArgs(args)})
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.sendMessage(chatID, formatSummary(summary))
}

func (b *Bot) handleExportGuests(ctx context.Context, chatID int64) {
	d, ok := b.dashboard(ctx, chatID)
	if !ok {
		return
	}
	if d.Guests.State() != listing.StateLoaded {
		if _, err := d.GuestPage(ctx, service.GuestQuery{}); err != nil {
			b.replyError(ctx, chatID, err)
			return
		}
	}
	var buf bytes.Buffer
	if err := d.ExportGuests(&buf); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.sendDocument(chatID, "guests.xlsx", buf.Bytes())
}

func (b *Bot) handleExportDashboard(ctx context.Context, chatID int64, args []string) {
	d, ok := b.dashboard(ctx, chatID)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := d.ExportDashboard(ctx, &buf, analytics.Filter{Centers: centerArgs(args)}); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.sendDocument(chatID, "dashboard.xlsx", buf.Bytes())
}

func (b *Bot) handleMonthly(ctx context.Context, chatID int64, args []string) {
	if len(args) < 3 {
		b.sendMessage(chatID, "Usage: /monthly <month> <year> <center>")
		return
	}
	month, err1 := strconv.Atoi(args[0])
	year, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		b.sendMessage(chatID, "Month and year must be numbers, e.g. /monthly 3 2024 North")
		return
	}
	d, ok := b.dashboard(ctx, chatID)
	if !ok {
		return
	}
	data, name, err := d.MonthlyBookings(ctx, month, year, strings.Join(args[2:], " "))
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.sendDocument(chatID, name, data)
}

func (b *Bot) handleRefresh(ctx context.Context, chatID int64) {
	d, ok := b.dashboard(ctx, chatID)
	if !ok {
		return
	}
	msg, err := d.UpdateBookingStatus(ctx)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	if msg == "" {
		msg = "Booking statuses updated."
	}
	b.sendMessage(chatID, "🔄 "+msg)
}

// handleDialogInput routes free text to the step of the open dialog.
func (b *Bot) handleDialogInput(ctx context.Context, chatID int64, text string) {
	state, err := b.stateService.GetUserState(ctx, chatID)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	if state == nil || state.CurrentStep == "" || state.CurrentStep == models.StateMainMenu {
		b.sendMessage(chatID, helpText)
		return
	}

	switch state.CurrentStep {
	case models.StateBookingAddress:
		b.onBookingAddress(ctx, chatID, state, text)
	case models.StateBookingAge:
		b.onBookingAge(ctx, chatID, state, text)
	case models.StateBookingDate:
		b.onBookingDate(ctx, chatID, state, text)
	case models.StateReschedulePin:
		b.onReschedulePincode(ctx, chatID, state, text)
	case models.StateRescheduleDate:
		b.onRescheduleDate(ctx, chatID, state, text)
	default:
		b.sendMessage(chatID, "Please use the buttons above, or /cancel.")
	}
}

func pageArg(args []string, i int) int {
	if i >= len(args) {
		return 1
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 1
	}
	return n
}

func centerArgs(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	return []string{strings.Join(args, " ")}
}
