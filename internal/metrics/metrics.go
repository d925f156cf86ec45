// Package metrics registers the courier Prometheus collectors and the
// HTTP middleware that feeds the request-level ones.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courier_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	notificationsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_notifications_submitted_total",
			Help: "Total notifications accepted by category and channel",
		},
		[]string{"category", "channel"},
	)

	deliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_delivery_attempts_total",
			Help: "Delivery attempts by channel, provider, and outcome",
		},
		[]string{"channel", "provider", "outcome"},
	)

	notificationsFinal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_notifications_final_total",
			Help: "Notifications reaching a final status",
		},
		[]string{"status"},
	)

	dispatchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courier_dispatch_latency_seconds",
			Help:    "Time from submission to first successful send",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"channel"},
	)

	preferenceSuppressions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_preference_suppressions_total",
			Help: "Channels suppressed by user preferences",
		},
		[]string{"channel", "reason"},
	)

	workerClaimed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_worker_claimed_notifications",
			Help: "Notifications claimed in the current worker cycle",
		},
	)

	idempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_idempotency_hits_total",
			Help: "Requests served from idempotency cache",
		},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiter",
		},
		[]string{"client"},
	)

	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_db_connections_active",
			Help: "Active database connections",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordNotificationSubmitted records an accepted notification per channel
func RecordNotificationSubmitted(category, channel string) {
	notificationsSubmitted.WithLabelValues(category, channel).Inc()
}

// RecordDeliveryAttempt records one provider attempt
func RecordDeliveryAttempt(channel, provider, outcome string) {
	deliveryAttempts.WithLabelValues(channel, provider, outcome).Inc()
}

// RecordFinalStatus records a notification reaching sent/failed/cancelled
func RecordFinalStatus(status string) {
	notificationsFinal.WithLabelValues(status).Inc()
}

// RecordDispatchLatency records submission-to-send time per channel
func RecordDispatchLatency(channel string, latency time.Duration) {
	dispatchLatency.WithLabelValues(channel).Observe(latency.Seconds())
}

// RecordPreferenceSuppression records a channel removed by preferences
func RecordPreferenceSuppression(channel, reason string) {
	preferenceSuppressions.WithLabelValues(channel, reason).Inc()
}

// SetWorkerClaimed sets the current claimed notification count
func SetWorkerClaimed(count int) {
	workerClaimed.Set(float64(count))
}

// RecordIdempotencyHit records a cache hit for idempotency
func RecordIdempotencyHit() {
	idempotencyHits.Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(client string) {
	rateLimitRejections.WithLabelValues(client).Inc()
}

// SetDBConnections sets active database connection count
func SetDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}

// statusRecorder captures the response code for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Middleware records a counter and latency sample per request. The
// path label uses the chi route pattern when one matched, so ids in
// the URL do not blow up label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		RecordRequest(r.Method, path, rec.status, time.Since(start))
	})
}
