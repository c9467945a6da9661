package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "diagdesk"

var (
	once sync.Once

	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Backend calls by endpoint and status.",
		},
		[]string{"endpoint", "status"},
	)

	gatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Backend call latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Dashboard API requests by route and status.",
		},
		[]string{"route", "status"},
	)

	bookingsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_submitted_total",
			Help:      "Booking and reschedule submissions by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	staleResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_responses_total",
			Help:      "Responses dropped because a newer query superseded them.",
		},
		[]string{"view"},
	)

	sessionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Logins and logouts.",
		},
		[]string{"event"},
	)

	botUpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bot_update_processing_seconds",
			Help:      "Time spent processing a Telegram update.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	sheetsSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sheets_sync_total",
			Help:      "Spreadsheet sync attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register registers the collectors with the default registry. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			gatewayRequests,
			gatewayDuration,
			httpRequests,
			bookingsSubmitted,
			staleResponses,
			sessionEvents,
			botUpdateDuration,
			sheetsSyncs,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveGateway records one backend call. status is 0 for transport failures.
func ObserveGateway(endpoint string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	gatewayRequests.WithLabelValues(endpoint, label).Inc()
	gatewayDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func IncHTTP(route string, status int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func IncBooking(kind string, ok bool) {
	outcome := "failed"
	if ok {
		outcome = "succeeded"
	}
	bookingsSubmitted.WithLabelValues(kind, outcome).Inc()
}

func IncStale(view string) {
	staleResponses.WithLabelValues(view).Inc()
}

func IncSession(event string) {
	sessionEvents.WithLabelValues(event).Inc()
}

func ObserveBotUpdate(elapsed time.Duration) {
	botUpdateDuration.Observe(elapsed.Seconds())
}

func IncSheetsSync(ok bool) {
	outcome := "failed"
	if ok {
		outcome = "succeeded"
	}
	sheetsSyncs.WithLabelValues(outcome).Inc()
}
