package domain

import (
	"context"
	"time"

	"diagdesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// LocalStorage is a string key/value store scoped to one client.
// Get reports ok=false for a missing key.
type LocalStorage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type StateRepository interface {
	GetState(ctx context.Context, userID int64) (*models.UserState, error)
	SetState(ctx context.Context, state *models.UserState) error
	ClearState(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

type StateManager interface {
	GetUserState(ctx context.Context, userID int64) (*models.UserState, error)
	ClearUserState(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
	SaveDraft(ctx context.Context, userID int64, step string, draft models.BookingDraft) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// AuthGateway is the part of the backend the session store talks to.
type AuthGateway interface {
	Login(ctx context.Context, username, password string) (*models.LoginResponse, error)
	Centers(ctx context.Context) ([]models.Center, error)
}

// SlotGateway is the part of the backend the booking workflow talks to.
type SlotGateway interface {
	AvailableSlots(ctx context.Context, pincode, date string) (*models.AvailableSlots, error)
	CreateSlotBookings(ctx context.Context, bookings []models.NewSlotBooking) (*models.MessageResponse, error)
	RescheduleBooking(ctx context.Context, req models.RescheduleRequest) (*models.RescheduleResponse, error)
	CenterDetails(ctx context.Context, centerName string) (*models.CenterDetails, error)
}

// Gateway is the whole backend surface.
type Gateway interface {
	AuthGateway
	SlotGateway
	Guests(ctx context.Context, centers []string) ([]models.Guest, error)
	SlotBookings(ctx context.Context, guestCode string) ([]models.SlotBooking, error)
	BookingDetails(ctx context.Context, guestCode string) (*models.BookingDetails, error)
	UpdateBookingStatus(ctx context.Context) (*models.MessageResponse, error)
	Investigations(ctx context.Context, centers []string) (*models.InvestigationPayload, error)
	GuestItems(ctx context.Context, phone string) ([]models.GuestItem, error)
	LabReports(ctx context.Context, rng models.ReportRange, token string) ([]models.LabReport, error)
	Reports(ctx context.Context, rng models.ReportRange, token string) ([]models.LabReport, error)
	MonthlyBookingsExcel(ctx context.Context, month, year int, center string) ([]byte, error)
	MonthlyBookingsURL(month, year int, center string) string
	LabReportURL(testID string) string
}

// SheetsWriter replaces the contents of a named sheet; rows[0] is the header.
type SheetsWriter interface {
	ReplaceSheet(ctx context.Context, sheetName string, rows [][]interface{}) error
}

type SyncWorker interface {
	EnqueueGuestSync(ctx context.Context, centers []string) error
}

// TelegramSender is the subset of *tgbotapi.BotAPI the bot uses.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

type TelegramService interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMessage(chatID int64, text string) (tgbotapi.Message, error)
	SendWithInlineKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	SendDocument(chatID int64, name string, data []byte) (tgbotapi.Message, error)
	AnswerCallback(callbackID string, text string) error
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}
