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
			Name: "pitchside_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pitchside_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	jobsScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitchside_jobs_scheduled_total",
			Help: "Total notification jobs enqueued by type",
		},
		[]string{"type"},
	)

	jobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitchside_jobs_processed_total",
			Help: "Total notification jobs reaching a terminal state",
		},
		[]string{"status", "type"},
	)

	jobsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pitchside_jobs_pruned_total",
			Help: "Terminal jobs removed by retention pruning",
		},
	)

	jobsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pitchside_jobs_pending",
			Help: "Jobs currently pending delivery",
		},
	)

	dispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pitchside_dispatch_tick_duration_seconds",
			Help:    "Duration of one scheduler dispatch tick",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60},
		},
	)

	digestsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pitchside_generator_dedup_suppressed_total",
			Help: "Generator enqueues suppressed by the dedup guard",
		},
	)

	probeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pitchside_watchdog_probe_failures_total",
			Help: "Failed liveness probes against the prediction service",
		},
	)

	restartAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pitchside_watchdog_restart_attempts_total",
			Help: "Restart attempts launched by the watchdog",
		},
	)

	watchdogExhausted = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pitchside_watchdog_exhausted",
			Help: "1 when the watchdog has consumed all restart attempts",
		},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitchside_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"key"},
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

// RecordJobScheduled records a job entering the queue
func RecordJobScheduled(jobType string) {
	jobsScheduled.WithLabelValues(jobType).Inc()
}

// RecordJobProcessed records a job reaching a terminal state
func RecordJobProcessed(status, jobType string) {
	jobsProcessed.WithLabelValues(status, jobType).Inc()
}

// RecordJobsPruned records jobs removed by a retention run
func RecordJobsPruned(count int) {
	jobsPruned.Add(float64(count))
}

// SetJobsPending sets the pending-queue gauge
func SetJobsPending(count int) {
	jobsPending.Set(float64(count))
}

// RecordDispatchTick records the duration of one dispatch tick
func RecordDispatchTick(duration time.Duration) {
	dispatchDuration.Observe(duration.Seconds())
}

// RecordDedupSuppressed records a generator enqueue suppressed by the guard
func RecordDedupSuppressed() {
	digestsSuppressed.Inc()
}

// RecordProbeFailure records a failed liveness probe
func RecordProbeFailure() {
	probeFailures.Inc()
}

// RecordRestartAttempt records a watchdog restart attempt
func RecordRestartAttempt() {
	restartAttempts.Inc()
}

// SetWatchdogExhausted flags whether the restart budget is spent
func SetWatchdogExhausted(exhausted bool) {
	if exhausted {
		watchdogExhausted.Set(1)
	} else {
		watchdogExhausted.Set(0)
	}
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(key string) {
	rateLimitRejections.WithLabelValues(key).Inc()
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
