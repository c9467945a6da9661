package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"diagdesk/internal/config"
	"diagdesk/internal/domain"
	"diagdesk/internal/gateway"
	"diagdesk/internal/models"
	"diagdesk/internal/repository"
	"diagdesk/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatID int64 = 7

type sentMessage struct {
	text     string
	keyboard *tgbotapi.InlineKeyboardMarkup
	document string
}

type mockTelegramService struct {
	domain.TelegramService
	mu       sync.Mutex
	sent     []sentMessage
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
}

func (m *mockTelegramService) record(s sentMessage) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, s)
	return tgbotapi.Message{}, nil
}

func (m *mockTelegramService) SendMessage(chatID int64, text string) (tgbotapi.Message, error) {
	return m.record(sentMessage{text: text})
}

func (m *mockTelegramService) SendWithInlineKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	return m.record(sentMessage{text: text, keyboard: &kb})
}

func (m *mockTelegramService) SendDocument(chatID int64, name string, data []byte) (tgbotapi.Message, error) {
	return m.record(sentMessage{document: name})
}

func (m *mockTelegramService) AnswerCallback(string, string) error { return nil }

func (m *mockTelegramService) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockTelegramService) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updates
}

func (m *mockTelegramService) GetSelf() tgbotapi.User {
	return tgbotapi.User{UserName: "diagdesk_bot"}
}

func (m *mockTelegramService) last() sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMessage{}
	}
	return m.sent[len(m.sent)-1]
}

type fakeBackend struct {
	mu       sync.Mutex
	slots    []string
	bookings []models.NewSlotBooking
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.LoginResponse{Centers: []string{"North"}})
	})
	mux.HandleFunc("POST /guests", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]models.Guest{
			{GuestName: "Ravi", GuestCode: "G1", Date: "2024-03-01", Center: "North", Status: "Closed"},
			{GuestName: "Asha", GuestCode: "G2", Date: "2024-03-02", Center: "North", Status: "Pending"},
		})
	})
	mux.HandleFunc("POST /get-available-slots", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		slots := f.slots
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(models.AvailableSlots{Status: len(slots) > 0, Slots: slots})
	})
	mux.HandleFunc("POST /slot-bookings", func(w http.ResponseWriter, r *http.Request) {
		var req []models.NewSlotBooking
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.bookings = append(f.bookings, req...)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(models.MessageResponse{Message: "Slot booked"})
	})
	return mux
}

type testBot struct {
	bot     *Bot
	tg      *mockTelegramService
	state   *service.StateService
	backend *fakeBackend
}

func newTestBot(t *testing.T, botCfg config.BotConfig) *testBot {
	t.Helper()
	logger := zerolog.Nop()
	backend := &fakeBackend{slots: []string{"09:00-10:00", "10:00-11:00"}}
	upstream := httptest.NewServer(backend.handler())
	t.Cleanup(upstream.Close)

	gw := gateway.NewWithHTTPClient(config.BackendConfig{BaseURL: upstream.URL}, upstream.Client(), &logger)
	workspaces := service.NewWorkspaces(repository.NewMemoryStorage(), gw, config.BookingConfig{PageSize: 5}, nil, nil, &logger)
	state := service.NewStateService(repository.NewMemoryStateRepository(time.Hour), &logger)
	tg := &mockTelegramService{}

	if botCfg.RateLimitMessages == 0 {
		botCfg.RateLimitMessages = 100
		botCfg.RateLimitWindow = 60
	}
	b := NewBot(tg, &config.Config{Bot: botCfg}, state, workspaces, &logger)
	return &testBot{bot: b, tg: tg, state: state, backend: backend}
}

func (tb *testBot) send(text string) sentMessage {
	tb.bot.processUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: chatID},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
	}})
	return tb.tg.last()
}

func (tb *testBot) press(data string) sentMessage {
	tb.bot.processUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: chatID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}})
	return tb.tg.last()
}

func (tb *testBot) step(t *testing.T) string {
	t.Helper()
	st, err := tb.state.GetUserState(context.Background(), chatID)
	require.NoError(t, err)
	if st == nil {
		return ""
	}
	return st.CurrentStep
}

func TestBot_RequiresLogin(t *testing.T) {
	tb := newTestBot(t, config.BotConfig{})
	assert.Contains(t, tb.send("/guests").text, "not logged in")
}

func TestBot_LoginAndGuests(t *testing.T) {
	tb := newTestBot(t, config.BotConfig{})

	assert.Contains(t, tb.send("/login asha pw").text, "Logged in as asha")
	tb.tg.mu.Lock()
	require.Len(t, tb.tg.requests, 1, "login message is deleted")
	tb.tg.mu.Unlock()

	msg := tb.send("/guests pending")
	assert.Contains(t, msg.text, "Asha (G2)")
	assert.NotContains(t, msg.text, "Ravi")
	require.NotNil(t, msg.keyboard)
	assert.Equal(t, cbBook+"G2", *msg.keyboard.InlineKeyboard[0][1].CallbackData)

	assert.Contains(t, tb.send("/logout").text, "Logged out")
	assert.Contains(t, tb.send("/guests").text, "not logged in")
}

func TestBot_HomeBookingDialog(t *testing.T) {
	tb := newTestBot(t, config.BotConfig{})
	tb.send("/login asha pw")

	msg := tb.send("/book G2")
	require.NotNil(t, msg.keyboard)
	assert.Equal(t, models.StateBookingLocation, tb.step(t))

	assert.Equal(t, promptAddress, tb.press(cbLocation+models.LocationHome).text)
	assert.Equal(t, models.StateBookingAddress, tb.step(t))

	assert.Equal(t, promptAge, tb.send("12; MG Road; 500001").text)
	assert.Equal(t, promptDate, tb.send("34").text)

	msg = tb.send("2099-01-15")
	require.NotNil(t, msg.keyboard)
	assert.Equal(t, "09:00 - 10:00", msg.keyboard.InlineKeyboard[0][0].Text)
	assert.Equal(t, models.StateBookingSlot, tb.step(t))

	assert.Contains(t, tb.press(cbSlot+"1").text, "Slot booked")
	assert.Empty(t, tb.step(t), "dialog state is cleared")

	tb.backend.mu.Lock()
	defer tb.backend.mu.Unlock()
	require.Len(t, tb.backend.bookings, 1)
	got := tb.backend.bookings[0]
	assert.Equal(t, "G2", got.GuestCode)
	assert.Equal(t, 34, got.Age)
	assert.Equal(t, "12", got.DoorNo)
	assert.Equal(t, "500001", got.Pincode)
	assert.Equal(t, "10:00 - 11:00", got.TimeSlot)
}

func TestBot_NoSlotsKeepsDateStep(t *testing.T) {
	tb := newTestBot(t, config.BotConfig{})
	tb.backend.slots = nil
	tb.send("/login asha pw")
	tb.send("/book G2")
	tb.press(cbLocation + models.LocationHome)
	tb.send("12; MG Road; 500001")
	tb.send("-")

	assert.Contains(t, tb.send("2099-01-15").text, "No slots")
	assert.Equal(t, models.StateBookingDate, tb.step(t))
}

func TestBot_StaleButtonIgnored(t *testing.T) {
	tb := newTestBot(t, config.BotConfig{})
	tb.send("/login asha pw")
	tb.send("/book G2")

	assert.Contains(t, tb.press(cbSlot+"0").text, "no longer active")
	assert.Equal(t, models.StateBookingLocation, tb.step(t))

	assert.Equal(t, "Cancelled.", tb.send("/cancel").text)
	assert.Empty(t, tb.step(t))
}

func TestBot_AddressFormat(t *testing.T) {
	tb := newTestBot(t, config.BotConfig{})
	tb.send("/login asha pw")
	tb.send("/book G2")
	tb.press(cbLocation + models.LocationHome)

	assert.Equal(t, promptAddress, tb.send("just a street").text)
	assert.Equal(t, models.StateBookingAddress, tb.step(t))
}

func TestBot_ExportGuests(t *testing.T) {
	tb := newTestBot(t, config.BotConfig{})
	tb.send("/login asha pw")
	assert.Equal(t, "guests.xlsx", tb.send("/export").document)
}

func TestBot_RateLimit(t *testing.T) {
	tb := newTestBot(t, config.BotConfig{RateLimitMessages: 1, RateLimitWindow: 60})
	tb.send("/help")
	assert.Contains(t, tb.send("/help").text, "too fast")

	staff := newTestBot(t, config.BotConfig{RateLimitMessages: 1, RateLimitWindow: 60, Staff: []int64{chatID}})
	staff.send("/help")
	assert.Equal(t, helpText, staff.send("/help").text)
}

func TestBot_StartStopsOnContext(t *testing.T) {
	tb := newTestBot(t, config.BotConfig{})
	tb.tg.updates = make(chan tgbotapi.Update, 1)
	tb.tg.updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: chatID},
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: "/start",
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tb.bot.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(tb.tg.last().text, "Diagnostics dashboard")
	}, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bot did not stop")
	}
}

func TestBot_WithRecovery(t *testing.T) {
	tb := newTestBot(t, config.BotConfig{})
	assert.NotPanics(t, func() {
		tb.bot.withRecovery(func() { panic("boom") })
	})
}
