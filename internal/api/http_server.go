package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"diagdesk/internal/config"
	"diagdesk/internal/gateway"
	"diagdesk/internal/listing"
	"diagdesk/internal/logging"
	"diagdesk/internal/metrics"
	"diagdesk/internal/service"
	"diagdesk/internal/session"
	"diagdesk/internal/workflow"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// HTTPServer is the JSON facade over the dashboard workspaces.
type HTTPServer struct {
	cfg        config.APIConfig
	workspaces *service.Workspaces
	tokens     *TokenIssuer
	limiter    *rateLimiter
	logger     *zerolog.Logger
	handler    http.Handler
	server     *http.Server
}

func NewHTTPServer(cfg config.APIConfig, workspaces *service.Workspaces, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:        cfg,
		workspaces: workspaces,
		tokens:     NewTokenIssuer(cfg.Auth),
		limiter:    newRateLimiter(cfg.RateLimit),
		logger:     logging.Component(logger, "http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.HandleFunc("POST /api/v1/session", srv.handleLogin)
	mux.HandleFunc("GET /api/v1/session", srv.requireSession(srv.handleSession))
	mux.HandleFunc("DELETE /api/v1/session", srv.requireSession(srv.handleLogout))
	mux.HandleFunc("PUT /api/v1/session/report-token", srv.requireSession(srv.handleReportToken))
	mux.HandleFunc("GET /api/v1/guests", srv.requireSession(srv.handleGuests))
	mux.HandleFunc("GET /api/v1/guests/{code}", srv.requireSession(srv.handleGuestDetail))
	mux.HandleFunc("GET /api/v1/guest-items", srv.requireSession(srv.handleGuestItems))
	mux.HandleFunc("GET /api/v1/centers", srv.requireSession(srv.handleCenters))
	mux.HandleFunc("GET /api/v1/centers/{name}", srv.requireSession(srv.handleCenterDetails))
	mux.HandleFunc("GET /api/v1/slots", srv.requireSession(srv.handleSlots))
	mux.HandleFunc("POST /api/v1/bookings", srv.requireSession(srv.handleBook))
	mux.HandleFunc("POST /api/v1/reschedules", srv.requireSession(srv.handleReschedule))
	mux.HandleFunc("POST /api/v1/booking-status", srv.requireSession(srv.handleBookingStatus))
	mux.HandleFunc("GET /api/v1/analytics", srv.requireSession(srv.handleAnalytics))
	mux.HandleFunc("GET /api/v1/reports", srv.requireSession(srv.handleReports))
	mux.HandleFunc("GET /api/v1/monthly-bookings", srv.requireSession(srv.handleMonthly))
	mux.HandleFunc("GET /api/v1/exports/guests", srv.requireSession(srv.handleExportGuests))
	mux.HandleFunc("GET /api/v1/exports/dashboard", srv.requireSession(srv.handleExportDashboard))

	srv.handler = otelhttp.NewHandler(srv.loggingMiddleware(srv.limiter.middleware(mux)), "diagdesk-api")
	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		// Bookings wait out the settle and close delays before answering.
		WriteTimeout: 60 * time.Second,
	}
	return srv
}

// Handler exposes the full middleware stack, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// dashboard resolves the caller's workspace, writing the error response when it cannot.
func (s *HTTPServer) dashboard(w http.ResponseWriter, r *http.Request) (*service.Dashboard, bool) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errMissingToken.Error())
		return nil, false
	}
	d, err := s.workspaces.Get(r.Context(), claims.Subject)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return d, true
}

// fail maps a domain error onto a status code and writes it.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, code, err.Error())
}

func statusFor(err error) int {
	var apiErr *gateway.APIError
	switch {
	case errors.Is(err, session.ErrInvalidCredentials), errors.Is(err, session.ErrNotLoggedIn):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrCenterForbidden):
		return http.StatusForbidden
	case errors.Is(err, workflow.ErrNoSlots):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, listing.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, workflow.ErrPincodeRequired),
		errors.Is(err, workflow.ErrDateRequired),
		errors.Is(err, workflow.ErrPastDate),
		errors.Is(err, workflow.ErrTimeSlotRequired),
		errors.Is(err, workflow.ErrUnknownSlot),
		errors.Is(err, workflow.ErrFieldReadOnly),
		errors.Is(err, workflow.ErrCenterRequired),
		errors.Is(err, workflow.ErrInvalidAge),
		errors.Is(err, workflow.ErrInvalidLocation),
		errors.Is(err, service.ErrGuestCodeRequired),
		errors.Is(err, service.ErrInvalidMonth):
		return http.StatusBadRequest
	case errors.Is(err, listing.ErrDiscarded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr), errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.IncHTTP(route, recorder.status)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func writeFile(w http.ResponseWriter, name string, data []byte) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
