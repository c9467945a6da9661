package bot

import (
	"context"
	"fmt"
	"strings"

	"diagdesk/internal/listing"
	"diagdesk/internal/models"
	"diagdesk/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// navRow renders previous/next buttons; prefix gets the target page appended.
func navRow[T any](page listing.Page[T], prefix, suffix string) []tgbotapi.InlineKeyboardButton {
	var nav []tgbotapi.InlineKeyboardButton
	if page.HasPrev() {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", fmt.Sprintf("%s%d%s", prefix, page.Number-1, suffix)))
	}
	if page.HasNext() {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Next ➡️", fmt.Sprintf("%s%d%s", prefix, page.Number+1, suffix)))
	}
	return nav
}

func pageHeader[T any](title string, page listing.Page[T]) string {
	if page.Total == 0 {
		return title + "\n\nNothing found."
	}
	return fmt.Sprintf("%s\n%d–%d of %d · page %d/%d\n", title, page.From(), page.To(), page.Total, page.Number, page.TotalPages)
}

func (b *Bot) sendGuestPage(ctx context.Context, chatID int64, d *service.Dashboard, status listing.StatusFilter, pageNo int, search string) {
	page, err := d.GuestPage(ctx, service.GuestQuery{Status: status, Page: pageNo, Search: search})
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}

	var sb strings.Builder
	sb.WriteString(pageHeader("👥 Guests", page))
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, g := range page.Items {
		sb.WriteString("\n" + formatGuest(g))
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("🔎 "+g.GuestCode, cbGuest+g.GuestCode),
			tgbotapi.NewInlineKeyboardButtonData("📅 Book", cbBook+g.GuestCode),
		})
	}
	if nav := navRow(page, cbGuestsPage, ":"+string(status)); len(nav) > 0 {
		rows = append(rows, nav)
	}
	b.sendKeyboard(chatID, sb.String(), rows)
}

func (b *Bot) sendReportPage(ctx context.Context, chatID int64, d *service.Dashboard, pageNo int) {
	page, err := d.ReportPage(ctx, service.ReportQuery{Page: pageNo})
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}

	var sb strings.Builder
	sb.WriteString(pageHeader("🧪 Lab reports", page))
	for _, r := range page.Items {
		sb.WriteString(fmt.Sprintf("\n%s · %s · %s\n%s\n", r.PName, r.TestName, r.InDate, d.ReportURL(r.TestID)))
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	if page.TotalPages > 1 {
		var strip []tgbotapi.InlineKeyboardButton
		for _, n := range listing.PageWindow(page.Number, page.TotalPages) {
			label := fmt.Sprint(n)
			if n == page.Number {
				label = "· " + label + " ·"
			}
			strip = append(strip, tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("%s%d", cbReportsPage, n)))
		}
		rows = append(rows, strip)
	}
	b.sendKeyboard(chatID, sb.String(), rows)
}

func formatBookings(detail *service.GuestDetail) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🔎 Guest %s\nStatus: %s\n", detail.GuestCode, orDash(detail.Status)))
	if len(detail.Bookings) == 0 {
		sb.WriteString("\nNo slot bookings yet.")
		return sb.String()
	}
	sb.WriteString("\nSlot bookings:\n")
	for _, bk := range detail.Bookings {
		sb.WriteString(fmt.Sprintf("• %s · age %s · %s\n", bk.Date, orDash(bk.Age), orDash(bk.Address)))
	}
	return sb.String()
}

func formatItems(items []models.GuestItem) string {
	if len(items) == 0 {
		return "No billed items."
	}
	var sb strings.Builder
	sb.WriteString("🧾 Items:\n")
	for _, it := range items {
		sb.WriteString(fmt.Sprintf("• %s %s\n", it.ItemCode, it.ItemName))
	}
	return sb.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return s
}
