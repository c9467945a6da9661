package service

import (
	"errors"
	"strings"
	"unicode/utf8"

	"diagdesk/internal/domain"
	"diagdesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrEmptyDocument is returned when an export produced no bytes to upload.
var ErrEmptyDocument = errors.New("document is empty")

// TelegramService is the bot's outbound side: dashboard replies, dialog
// keyboards and workbook uploads.
type TelegramService struct {
	api   domain.TelegramSender
	limit int
}

func NewTelegramService(api domain.TelegramSender) *TelegramService {
	return &TelegramService{api: api, limit: models.MaxMessageLength}
}

func (s *TelegramService) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return s.api.Request(c)
}

// SendMessage sends text, split at line breaks into as many messages as the
// Telegram length limit needs. The last message sent is returned.
func (s *TelegramService) SendMessage(chatID int64, text string) (tgbotapi.Message, error) {
	var last tgbotapi.Message
	for _, part := range splitMessage(text, s.limit) {
		msg, err := s.api.Send(tgbotapi.NewMessage(chatID, part))
		if err != nil {
			return last, err
		}
		last = msg
	}
	return last, nil
}

// SendWithInlineKeyboard sends a dialog prompt. Prompts are short, so the
// keyboard always rides on a single message.
func (s *TelegramService) SendWithInlineKeyboard(
	chatID int64,
	text string,
	keyboard tgbotapi.InlineKeyboardMarkup,
) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	return s.api.Send(msg)
}

// SendDocument uploads an exported workbook under name, captioned with it.
func (s *TelegramService) SendDocument(chatID int64, name string, data []byte) (tgbotapi.Message, error) {
	if len(data) == 0 {
		return tgbotapi.Message{}, ErrEmptyDocument
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = "📎 " + name
	return s.api.Send(doc)
}

func (s *TelegramService) AnswerCallback(callbackID, text string) error {
	_, err := s.api.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

func (s *TelegramService) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return s.api.GetUpdatesChan(config)
}

func (s *TelegramService) GetSelf() tgbotapi.User {
	return s.api.GetSelf()
}

func (s *TelegramService) StopReceivingUpdates() {
	s.api.StopReceivingUpdates()
}

// splitMessage cuts text into parts of at most limit runes, preferring the
// last line break inside each part.
func splitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		if i := lastIndexRune(runes[:limit], '\n'); i > 0 {
			cut = i + 1
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func lastIndexRune(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
