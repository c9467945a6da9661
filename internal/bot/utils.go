package bot

import (
	"fmt"
	"strings"

	"diagdesk/internal/analytics"
	"diagdesk/internal/models"
	"diagdesk/internal/workflow"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) sendMessage(chatID int64, text string) {
	if _, err := b.tgService.SendMessage(chatID, text); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send message failed")
	}
}

func (b *Bot) sendKeyboard(chatID int64, text string, rows [][]tgbotapi.InlineKeyboardButton) {
	if len(rows) == 0 {
		b.sendMessage(chatID, text)
		return
	}
	if _, err := b.tgService.SendWithInlineKeyboard(chatID, text, tgbotapi.NewInlineKeyboardMarkup(rows...)); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send keyboard failed")
	}
}

func (b *Bot) sendDocument(chatID int64, name string, data []byte) {
	if _, err := b.tgService.SendDocument(chatID, name, data); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Str("file", name).Msg("send document failed")
		b.sendMessage(chatID, "❌ Could not upload the file.")
	}
}

// parseCommand splits "/cmd@bot a b" into "cmd" and its arguments.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), fields[1:]
}

func formatGuest(g models.Guest) string {
	status := "⏳"
	if g.IsClosed() {
		status = "✅"
	}
	return fmt.Sprintf("%s %s (%s) · %s · %s", status, g.GuestName, g.GuestCode, g.Center, g.Date)
}

func formatMoney(v float64) string {
	return fmt.Sprintf("₹%.2f", v)
}

func formatSummary(s analytics.Summary) string {
	var sb strings.Builder
	sb.WriteString("📊 Dashboard\n\n")
	sb.WriteString(fmt.Sprintf("Revenue: %s\n", formatMoney(s.TotalRevenue)))
	sb.WriteString(fmt.Sprintf("Clients: %d\n", s.TotalClients))
	sb.WriteString(fmt.Sprintf("Tests: %d\n", s.TotalTests))

	if len(s.TopTests) > 0 {
		sb.WriteString("\nTop tests:\n")
		for i, t := range s.TopTests {
			sb.WriteString(fmt.Sprintf("%d. %s: %.0f\n", i+1, t.Name, t.Value))
		}
	}
	if len(s.EmployeeRevenue) > 0 {
		sb.WriteString("\nRevenue by employee:\n")
		for _, e := range s.EmployeeRevenue {
			sb.WriteString(fmt.Sprintf("• %s: %s\n", e.Name, formatMoney(e.Value)))
		}
	}
	return sb.String()
}

// slotButtons lays slots out two per row; callbacks carry the slot index.
func slotButtons(slots []string) [][]tgbotapi.InlineKeyboardButton {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, (len(slots)+1)/2)
	for i := 0; i < len(slots); i += 2 {
		row := []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(workflow.NormalizeSlot(slots[i]), fmt.Sprintf("%s%d", cbSlot, i)),
		}
		if i+1 < len(slots) {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(workflow.NormalizeSlot(slots[i+1]), fmt.Sprintf("%s%d", cbSlot, i+1)))
		}
		rows = append(rows, row)
	}
	return rows
}
