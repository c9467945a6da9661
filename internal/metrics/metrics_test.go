package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestCounters(t *testing.T) {
	ObserveGateway("/guests", 200, 15*time.Millisecond)
	ObserveGateway("/guests", 0, time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(gatewayRequests.WithLabelValues("/guests", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(gatewayRequests.WithLabelValues("/guests", "error")))

	IncBooking("booking", true)
	IncBooking("booking", false)
	IncBooking("booking", false)
	assert.Equal(t, float64(2), testutil.ToFloat64(bookingsSubmitted.WithLabelValues("booking", "failed")))

	IncStale("guests")
	assert.Equal(t, float64(1), testutil.ToFloat64(staleResponses.WithLabelValues("guests")))

	assert.NotPanics(t, func() {
		IncHTTP("/api/v1/guests", 200)
		IncSession("session_login")
		ObserveBotUpdate(time.Millisecond)
		IncSheetsSync(true)
	})
}

func TestHandler(t *testing.T) {
	Register()
	IncStale("reports")

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "diagdesk_stale_responses_total")
}
