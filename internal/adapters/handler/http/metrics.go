package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fedwatch.dashboard/internal/core/domain"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Job metrics
	jobsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fl_jobs",
			Help: "Number of jobs by status",
		},
		[]string{"status"},
	)

	jobsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fl_jobs_created_total",
			Help: "Total number of jobs created from the dashboard",
		},
	)

	jobStatusChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fl_job_status_changes_total",
			Help: "Total number of manual job status changes by target status",
		},
		[]string{"status"},
	)

	metricsSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fl_metrics_sync_total",
			Help: "Total number of job metrics sync attempts by result",
		},
		[]string{"result"},
	)

	// Auth metrics
	loginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_login_attempts_total",
			Help: "Total number of login attempts by result",
		},
		[]string{"result"},
	)

	websocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_websocket_clients",
			Help: "Number of connected websocket clients",
		},
	)
)

// MetricsMiddleware records HTTP request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip metrics for WebSocket upgrade requests
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// MetricsHandler returns the Prometheus metrics handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func RecordJobCreated() {
	jobsCreatedTotal.Inc()
}

func RecordStatusChange(status string) {
	jobStatusChangesTotal.WithLabelValues(status).Inc()
}

func RecordLogin(result string) {
	loginAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordMetricsSync matches services.MetricsSync.OnSync.
func RecordMetricsSync(jobID string, err error) {
	if err != nil {
		metricsSyncTotal.WithLabelValues("error").Inc()
		return
	}
	metricsSyncTotal.WithLabelValues("ok").Inc()
}

// SetJobsByStatus publishes the current job counts.
func SetJobsByStatus(counts map[domain.JobStatus]int64) {
	for status, n := range counts {
		jobsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}

func SetWebsocketClients(n int) {
	websocketClients.Set(float64(n))
}
