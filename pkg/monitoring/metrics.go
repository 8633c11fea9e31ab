package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Booking metrics
	bookingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_total",
			Help: "Total number of booking commits",
		},
		[]string{"category", "outcome"},
	)

	conflictsDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conflicts_detected_total",
			Help: "Total number of conflicts detected during checks",
		},
		[]string{"kind"},
	)

	slotQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slot_query_duration_seconds",
			Help:    "Duration of slot generation queries in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"kind"},
	)

	remindersSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminders_sent_total",
			Help: "Total number of reminders sent",
		},
		[]string{"recipient"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		bookingsTotal,
		conflictsDetectedTotal,
		slotQueryDuration,
		remindersSentTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records metrics for one HTTP request
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordBooking records the outcome of a booking commit
func RecordBooking(category, outcome string) {
	bookingsTotal.WithLabelValues(category, outcome).Inc()
}

// RecordConflict records a detected conflict by kind
func RecordConflict(kind string) {
	conflictsDetectedTotal.WithLabelValues(kind).Inc()
}

// RecordSlotQuery records the duration of a slot generation query
func RecordSlotQuery(kind string, duration time.Duration) {
	slotQueryDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordReminderSent records one sent reminder
func RecordReminderSent(recipient string) {
	remindersSentTotal.WithLabelValues(recipient).Inc()
}
