package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	aggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulse_aggregation_duration_seconds",
			Help:    "Time to compute one user's notification list",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	sourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_source_failures_total",
			Help: "Notification sources that failed and were skipped",
		},
		[]string{"source"},
	)

	badgeRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_badge_refreshes_total",
			Help: "Badge counts recomputed and delivered",
		},
	)

	badgePushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_badge_pushes_total",
			Help: "Badge push deliveries by status",
		},
		[]string{"status"},
	)

	refreshCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_badge_refresh_coalesced_total",
			Help: "Badge refresh requests absorbed by an in-flight refresh",
		},
	)

	ledgerOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_ledger_ops_total",
			Help: "Visit ledger operations by op and kind",
		},
		[]string{"op", "kind"},
	)

	sqsMessagesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_sqs_messages_in_flight",
			Help: "Current badge refresh messages being processed from SQS",
		},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiter",
		},
		[]string{"user_id"},
	)

	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_db_connections_active",
			Help: "Active database connections",
		},
	)

	redisConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_redis_connections_active",
			Help: "Active Redis connections",
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

// StartAggregationTimer times one aggregation pass; call ObserveDuration
// on the returned timer when the pass completes.
func StartAggregationTimer() *prometheus.Timer {
	return prometheus.NewTimer(aggregationDuration)
}

// RecordSourceFailure records a notification source that errored out
func RecordSourceFailure(source string) {
	sourceFailures.WithLabelValues(source).Inc()
}

// RecordBadgeRefresh records a completed badge recompute-and-deliver
func RecordBadgeRefresh() {
	badgeRefreshes.Inc()
}

// RecordBadgePush records a badge push delivery attempt result
func RecordBadgePush(status string) {
	badgePushes.WithLabelValues(status).Inc()
}

// RecordRefreshCoalesced records a refresh request absorbed by another
func RecordRefreshCoalesced() {
	refreshCoalesced.Inc()
}

// RecordLedgerOp records a visit ledger read or write
func RecordLedgerOp(op, kind string) {
	ledgerOps.WithLabelValues(op, kind).Inc()
}

// SetSQSMessagesInFlight sets the current in-flight message count
func SetSQSMessagesInFlight(count int) {
	sqsMessagesInFlight.Set(float64(count))
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(userID string) {
	rateLimitRejections.WithLabelValues(userID).Inc()
}

// SetDBConnections sets active database connection count
func SetDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}

// SetRedisConnections sets active Redis connection count
func SetRedisConnections(count int) {
	redisConnectionsActive.Set(float64(count))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
