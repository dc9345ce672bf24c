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

const namespace = "changewatch"

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		},
	)

	// Check metrics
	checksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "checks_total",
			Help:      "Total number of monitor checks by outcome",
		},
		[]string{"status"},
	)

	checkDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "check_duration_seconds",
			Help:      "Duration of a monitor check in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120},
		},
	)

	checksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "checks_in_flight",
			Help:      "Number of monitor checks currently running",
		},
	)

	skippedTriggers = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "triggers_skipped_total",
			Help:      "Triggers ignored because a check was already in progress",
		},
	)

	monitorStateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "state_transitions_total",
			Help:      "Monitor status transitions",
		},
		[]string{"to"},
	)

	// Alert metrics
	alertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "created_total",
			Help:      "Total number of alerts created",
		},
		[]string{"urgency"},
	)

	alertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "suppressed_total",
			Help:      "Total number of alerts suppressed",
		},
		[]string{"reason"},
	)

	// Anomaly metrics
	anomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "anomaly",
			Name:      "detected_total",
			Help:      "Total number of anomalies detected",
		},
		[]string{"type"},
	)

	anomaliesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "anomaly",
			Name:      "skipped_total",
			Help:      "Metrics whose anomaly model could not be fit",
		},
		[]string{"reason"},
	)

	// Snapshot store metrics
	compressionRatio = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "compression_ratio",
			Help:      "Stored size divided by original size for compressed payloads",
			Buckets:   []float64{.05, .1, .2, .3, .4, .5, .6, .8, 1},
		},
	)

	flushBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "flush_batch_size",
			Help:      "Number of snapshots persisted per flush",
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		},
	)

	flushErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "flush_errors_total",
			Help:      "Total number of failed snapshot flushes",
		},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "cache_lookups_total",
			Help:      "Snapshot read cache lookups by result",
		},
		[]string{"result"},
	)

	snapshotsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "retention_deleted_total",
			Help:      "Snapshots removed by retention cleanup",
		},
	)

	// Notification metrics
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "deliveries_total",
			Help:      "Notification deliveries by channel kind and status",
		},
		[]string{"channel", "status"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns a middleware that records Prometheus metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()

		// Get route pattern from chi
		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}

		status := strconv.Itoa(wrapped.statusCode)

		httpRequestsTotal.WithLabelValues(r.Method, routePattern, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, routePattern, status).Observe(duration)
	})
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCheck records the outcome and duration of a monitor check
func RecordCheck(status string, duration time.Duration) {
	checksTotal.WithLabelValues(status).Inc()
	checkDuration.Observe(duration.Seconds())
}

// CheckStarted increments the in-flight gauge; call the returned func when done
func CheckStarted() func() {
	checksInFlight.Inc()
	return checksInFlight.Dec
}

// RecordSkippedTrigger records a trigger dropped by the per-monitor lease
func RecordSkippedTrigger() {
	skippedTriggers.Inc()
}

// RecordStateTransition records a monitor status change
func RecordStateTransition(to string) {
	monitorStateTransitions.WithLabelValues(to).Inc()
}

// RecordAlert records a created alert
func RecordAlert(urgency string) {
	alertsTotal.WithLabelValues(urgency).Inc()
}

// RecordSuppressed records a suppressed alert
func RecordSuppressed(reason string) {
	alertsSuppressed.WithLabelValues(reason).Inc()
}

// RecordAnomaly records a detected anomaly
func RecordAnomaly(anomalyType string) {
	anomaliesTotal.WithLabelValues(anomalyType).Inc()
}

// RecordAnomalySkipped records a metric the detector could not score
func RecordAnomalySkipped(reason string) {
	anomaliesSkipped.WithLabelValues(reason).Inc()
}

// RecordCompression records the ratio of a compressed payload
func RecordCompression(ratio float64) {
	compressionRatio.Observe(ratio)
}

// RecordFlush records a successful batch flush
func RecordFlush(size int) {
	flushBatchSize.Observe(float64(size))
}

// RecordFlushError records a failed batch flush
func RecordFlushError() {
	flushErrors.Inc()
}

// RecordCacheLookup records a read cache hit or miss
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(result).Inc()
}

// RecordRetentionDeleted records snapshots removed by cleanup
func RecordRetentionDeleted(count int) {
	snapshotsDeleted.Add(float64(count))
}

// RecordNotification records a delivery attempt outcome
func RecordNotification(channel, status string) {
	notificationsTotal.WithLabelValues(channel, status).Inc()
}
