// Package metrics provides Prometheus metrics for the Quillbox server.
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
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quillbox_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quillbox_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// SFTP gateway metrics
	sftpOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quillbox_sftp_operation_duration_seconds",
			Help:    "SFTP operation duration in seconds (including connect)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	sftpOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quillbox_sftp_operations_total",
			Help: "Total SFTP operations",
		},
		[]string{"operation", "status"},
	)

	// Content transfer metrics
	contentBytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quillbox_content_bytes_served_total",
			Help: "Total bytes served through the serve endpoint",
		},
	)

	contentBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quillbox_content_bytes_written_total",
			Help: "Total bytes written through create/update/upload",
		},
	)

	serveRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quillbox_serve_requests_total",
			Help: "Total serve endpoint requests",
		},
		[]string{"auth", "status"},
	)

	htmlRewritesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quillbox_html_rewrites_total",
			Help: "Total HTML documents rewritten by the serve endpoint",
		},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quillbox_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	shareTokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quillbox_share_tokens_issued_total",
			Help: "Total share tokens issued",
		},
	)

	// Search metrics
	searchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quillbox_search_duration_seconds",
			Help:    "Full-tree search walk duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SSE metrics
	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quillbox_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quillbox_sse_events_total",
			Help: "Total SSE events published",
		},
		[]string{"type"},
	)

	// Rate limiting
	rateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quillbox_rate_limit_hits_total",
			Help: "Total rate limit rejections (429s)",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSFTPOperation records an SFTP gateway operation.
func RecordSFTPOperation(operation string, duration time.Duration, success bool) {
	sftpOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	sftpOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordContentServed records bytes served through the serve endpoint.
func RecordContentServed(bytes int64) {
	contentBytesServed.Add(float64(bytes))
}

// RecordContentWritten records bytes written through write endpoints.
func RecordContentWritten(bytes int64) {
	contentBytesWritten.Add(float64(bytes))
}

// RecordServeRequest records a serve endpoint request by auth mode.
func RecordServeRequest(authMode string, status int) {
	serveRequestsTotal.WithLabelValues(authMode, strconv.Itoa(status)).Inc()
}

// RecordHTMLRewrite records a rewritten HTML document.
func RecordHTMLRewrite() {
	htmlRewritesTotal.Inc()
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordShareTokenIssued records an issued share token.
func RecordShareTokenIssued() {
	shareTokensIssued.Inc()
}

// RecordSearch records a search walk duration.
func RecordSearch(duration time.Duration) {
	searchDuration.Observe(duration.Seconds())
}

// SetSSEConnectionsActive sets the number of active SSE connections.
func SetSSEConnectionsActive(count int64) {
	sseConnectionsActive.Set(float64(count))
}

// RecordSSEEvent records an SSE event publication.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordRateLimitHit records a rate limit rejection.
func RecordRateLimitHit() {
	rateLimitHitsTotal.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
