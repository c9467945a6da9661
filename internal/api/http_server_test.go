package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"diagdesk/internal/config"
	"diagdesk/internal/export"
	"diagdesk/internal/gateway"
	"diagdesk/internal/listing"
	"diagdesk/internal/models"
	"diagdesk/internal/repository"
	"diagdesk/internal/service"
	"diagdesk/internal/session"
	"diagdesk/internal/workflow"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// fakeBackend mimics the clinic backend routes the dashboard calls.
type fakeBackend struct {
	mu          sync.Mutex
	bookings    []models.NewSlotBooking
	reschedules []models.RescheduleRequest
	slots       []string
	rejectResch bool
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(models.LoginResponse{Message: "ok", Centers: []string{"North"}})
	})
	mux.HandleFunc("POST /guests", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]models.Guest{
			{GuestName: "Ravi", GuestCode: "G1", Date: "2024-03-01", Center: "North", Status: "Closed"},
			{GuestName: "Asha", GuestCode: "G2", Date: "2024-03-02", Center: "North", Status: "Pending"},
			{GuestName: "Meena", GuestCode: "G3", Date: "2024-03-03", Center: "North", Status: "Pending"},
		})
	})
	mux.HandleFunc("POST /get-available-slots", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		slots := b.slots
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(models.AvailableSlots{Status: len(slots) > 0, Slots: slots})
	})
	mux.HandleFunc("POST /slot-bookings", func(w http.ResponseWriter, r *http.Request) {
		var req []models.NewSlotBooking
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.bookings = append(b.bookings, req...)
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(models.MessageResponse{Message: "Slot booked"})
	})
	mux.HandleFunc("POST /reschedule-booking", func(w http.ResponseWriter, r *http.Request) {
		var req models.RescheduleRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.reschedules = append(b.reschedules, req)
		reject := b.rejectResch
		b.mu.Unlock()
		resp := models.RescheduleResponse{Status: "success", Message: "Rescheduled"}
		if reject {
			resp = models.RescheduleResponse{Status: "error", Message: "slot taken"}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("POST /investigations", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"investigations":[
			{"GuestCode":"G1","GuestName":"Ravi","Center":"North","Date":"2024-03-01","ItemName":"CBC","itemValue":"100"},
			{"GuestCode":"G1","GuestName":"Ravi","Center":"North","Date":"2024-03-01","ItemName":"CBC","itemValue":"100"},
			{"GuestCode":"G2","GuestName":"Asha","Center":"North","Date":"2024-03-02","ItemName":"TSH","itemValue":50}
		]}`)
	})
	mux.HandleFunc("GET /centers", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `["North","South"]`)
	})
	return mux
}

type harness struct {
	backend *fakeBackend
	server  *HTTPServer
	ts      *httptest.Server
}

func newHarness(t *testing.T, rateLimit config.APIRateLimitConfig) *harness {
	t.Helper()
	logger := zerolog.Nop()
	backend := &fakeBackend{slots: []string{"09:00-10:00", "10:00 - 11:00"}}
	upstream := httptest.NewServer(backend.handler())
	t.Cleanup(upstream.Close)

	gw := gateway.NewWithHTTPClient(config.BackendConfig{BaseURL: upstream.URL, LabReportURL: "https://lab/%s"}, upstream.Client(), &logger)
	workspaces := service.NewWorkspaces(repository.NewMemoryStorage(), gw, config.BookingConfig{PageSize: 2}, nil, nil, &logger)

	cfg := config.APIConfig{
		Enabled:   true,
		Auth:      config.APIAuthConfig{JWTSecret: testSecret, TokenTTLHours: 1, Issuer: "diagdesk"},
		RateLimit: rateLimit,
	}
	srv := NewHTTPServer(cfg, workspaces, &logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &harness{backend: backend, server: srv, ts: ts}
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) login(t *testing.T) string {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/api/v1/session", "", loginRequest{Username: "asha", Password: "pw"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body loginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{"North"}, body.Centers)
	require.NotEmpty(t, body.Token)
	return body.Token
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHTTP_LoginAndGuests(t *testing.T) {
	h := newHarness(t, config.APIRateLimitConfig{})
	token := h.login(t)

	resp := h.do(t, http.MethodGet, "/api/v1/guests?status=pending", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 1, body["total_pages"])
	assert.EqualValues(t, 1, body["from"])
	assert.EqualValues(t, 2, body["to"])

	resp = h.do(t, http.MethodGet, "/api/v1/guests?search=meena&from=2024-03-03", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode[map[string]any](t, resp)
	assert.EqualValues(t, 1, body["total"])

	resp = h.do(t, http.MethodGet, "/api/v1/guests?from=yesterday", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_Unauthorized(t *testing.T) {
	h := newHarness(t, config.APIRateLimitConfig{})

	resp := h.do(t, http.MethodGet, "/api/v1/guests", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/v1/guests", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/v1/session", "", loginRequest{Username: "asha", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, session.ErrInvalidCredentials.Error(), decode[map[string]string](t, resp)["error"])
}

func TestHTTP_ForbiddenCenter(t *testing.T) {
	h := newHarness(t, config.APIRateLimitConfig{})
	token := h.login(t)

	resp := h.do(t, http.MethodGet, "/api/v1/guests?center=South", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHTTP_Logout(t *testing.T) {
	h := newHarness(t, config.APIRateLimitConfig{})
	token := h.login(t)

	resp := h.do(t, http.MethodDelete, "/api/v1/session", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/v1/guests", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.do(t, http.MethodDelete, "/api/v1/session", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "logout twice is harmless")
}

func TestHTTP_Booking(t *testing.T) {
	h := newHarness(t, config.APIRateLimitConfig{})
	token := h.login(t)

	req := bookingRequest{
		GuestCode: "G2",
		Age:       "34",
		DoorNo:    "12",
		Address:   "MG Road",
		Pincode:   "500001",
		Date:      "2099-01-15",
		TimeSlot:  "09:00 - 10:00",
	}
	resp := h.do(t, http.MethodPost, "/api/v1/bookings", token, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "Slot booked", body["message"])
	assert.Equal(t, models.LocationHome, body["location"])

	h.backend.mu.Lock()
	require.Len(t, h.backend.bookings, 1)
	got := h.backend.bookings[0]
	h.backend.mu.Unlock()
	assert.Equal(t, "G2", got.GuestCode)
	assert.Equal(t, 34, got.Age)
	assert.Equal(t, "2099-01-15", got.Date)
	assert.Equal(t, "2099-01-15", got.FromDate)
	assert.Equal(t, "09:00 - 10:00", got.TimeSlot)

	t.Run("InvalidAge", func(t *testing.T) {
		bad := req
		bad.Age = "abc"
		resp := h.do(t, http.MethodPost, "/api/v1/bookings", token, bad)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("UnknownSlot", func(t *testing.T) {
		bad := req
		bad.TimeSlot = "18:00 - 19:00"
		resp := h.do(t, http.MethodPost, "/api/v1/bookings", token, bad)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("NoSlots", func(t *testing.T) {
		h.backend.mu.Lock()
		h.backend.slots = nil
		h.backend.mu.Unlock()
		resp := h.do(t, http.MethodPost, "/api/v1/bookings", token, req)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	h.backend.mu.Lock()
	assert.Len(t, h.backend.bookings, 1)
	h.backend.mu.Unlock()
}

func TestHTTP_Reschedule(t *testing.T) {
	h := newHarness(t, config.APIRateLimitConfig{})
	token := h.login(t)
	req := rescheduleRequest{GuestCode: "G2", BookingID: "B7", Pincode: "500001", Date: "2099-02-01", TimeSlot: "10:00-11:00"}

	resp := h.do(t, http.MethodPost, "/api/v1/reschedules", token, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Rescheduled", decode[models.RescheduleResponse](t, resp).Message)

	h.backend.mu.Lock()
	require.Len(t, h.backend.reschedules, 1)
	assert.Equal(t, "B7", h.backend.reschedules[0].BookingID)
	assert.Equal(t, "10:00 - 11:00", h.backend.reschedules[0].ConfirmedTimeSlot)
	h.backend.rejectResch = true
	h.backend.mu.Unlock()

	resp = h.do(t, http.MethodPost, "/api/v1/reschedules", token, req)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, resp)["error"], "slot taken")
}

func TestHTTP_Analytics(t *testing.T) {
	h := newHarness(t, config.APIRateLimitConfig{})
	token := h.login(t)

	resp := h.do(t, http.MethodGet, "/api/v1/analytics", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.EqualValues(t, 150, body["total_revenue"])
	assert.EqualValues(t, 2, body["total_clients"])
	assert.EqualValues(t, 3, body["total_tests"])

	resp = h.do(t, http.MethodGet, "/api/v1/analytics?from=2024-03-02", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 50, decode[map[string]any](t, resp)["total_revenue"])
}

func TestHTTP_ExportGuests(t *testing.T) {
	h := newHarness(t, config.APIRateLimitConfig{})
	token := h.login(t)

	resp := h.do(t, http.MethodGet, "/api/v1/exports/guests?status=closed", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "guests.xlsx")

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	info, err := export.InspectWorkbook(data)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Rows[export.SheetGuests], "header plus the one closed guest")
}

func TestHTTP_Session(t *testing.T) {
	h := newHarness(t, config.APIRateLimitConfig{})
	token := h.login(t)

	resp := h.do(t, http.MethodGet, "/api/v1/session", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "asha", body["username"])
	assert.Equal(t, false, body["admin"])

	resp = h.do(t, http.MethodPut, "/api/v1/session/report-token", token, map[string]string{"token": "lab-token"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestHTTP_RateLimit(t *testing.T) {
	h := newHarness(t, config.APIRateLimitConfig{RPS: 0.001, Burst: 2})

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/healthz", "", nil).StatusCode)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/healthz", "", nil).StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, h.do(t, http.MethodGet, "/healthz", "", nil).StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrNotLoggedIn, http.StatusUnauthorized},
		{fmt.Errorf("%w: South", session.ErrCenterForbidden), http.StatusForbidden},
		{workflow.ErrPastDate, http.StatusBadRequest},
		{workflow.ErrNoSlots, http.StatusNotFound},
		{fmt.Errorf("%w: submit from idle", workflow.ErrInvalidTransition), http.StatusConflict},
		{fmt.Errorf("fetch slots: %w", &gateway.APIError{StatusCode: 500}), http.StatusBadGateway},
		{service.ErrInvalidMonth, http.StatusBadRequest},
		{listing.ErrSuperseded, http.StatusConflict},
		{listing.ErrDiscarded, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestTokenIssuer(t *testing.T) {
	cfg := config.APIAuthConfig{JWTSecret: testSecret, TokenTTLHours: 1, Issuer: "diagdesk"}
	issuer := NewTokenIssuer(cfg)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return now }

	token, exp, err := issuer.Issue("ws-1", "asha")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), exp)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "ws-1", claims.Subject)
	assert.Equal(t, "asha", claims.Username)

	t.Run("Expired", func(t *testing.T) {
		later := NewTokenIssuer(cfg)
		later.now = func() time.Time { return now.Add(2 * time.Hour) }
		_, err := later.Parse(token)
		assert.ErrorIs(t, err, errInvalidToken)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other := NewTokenIssuer(config.APIAuthConfig{JWTSecret: "other", Issuer: "diagdesk"})
		other.now = issuer.now
		_, err := other.Parse(token)
		assert.ErrorIs(t, err, errInvalidToken)
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		other := NewTokenIssuer(config.APIAuthConfig{JWTSecret: testSecret, Issuer: "someone-else"})
		other.now = issuer.now
		_, err := other.Parse(token)
		assert.ErrorIs(t, err, errInvalidToken)
	})
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := bearerToken(r)
	assert.False(t, ok)

	r.Header.Set("Authorization", "bearer  abc ")
	tok, ok := bearerToken(r)
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	r.Header.Set("Authorization", "Basic abc")
	_, ok = bearerToken(r)
	assert.False(t, ok)
}

func TestSplitCSV(t *testing.T) {
	assert.Nil(t, splitCSV(""))
	assert.Equal(t, []string{"North", "South"}, splitCSV(" North, ,South "))
	assert.True(t, strings.HasPrefix(httpClientKey(httptest.NewRequest(http.MethodGet, "/", nil)), "192.0.2."))
}
