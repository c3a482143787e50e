// Package metrics provides Prometheus metrics for the organizer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage names used as label values.
const (
	StageGuardRail = "guardrail"
	StageEnumerate = "enumerate"
	StageExtract   = "extract"
	StageClassify  = "classify"
	StagePlan      = "plan"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "organizer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "organizer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	rateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "organizer_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	// Pipeline stage metrics
	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "organizer_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"stage"},
	)

	stageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "organizer_stage_outcomes_total",
			Help: "Pipeline stage outcomes",
		},
		[]string{"stage", "outcome"},
	)

	verdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "organizer_guardrail_verdicts_total",
			Help: "Admission verdicts by tier and result",
		},
		[]string{"tier", "result"},
	)

	filesEnumerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "organizer_files_enumerated_total",
			Help: "Files returned by the scope enumerator",
		},
	)

	enumerationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "organizer_enumeration_errors_total",
			Help: "Unreadable entries skipped during enumeration",
		},
	)

	classifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "organizer_classifications_total",
			Help: "Classifications by primary category",
		},
		[]string{"category"},
	)

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "organizer_jobs_total",
			Help: "Batch jobs by final status",
		},
		[]string{"status"},
	)

	// Object store metrics
	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "organizer_store_operation_duration_seconds",
			Help:    "Storage backend operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "organizer_store_operations_total",
			Help: "Total storage backend operations",
		},
		[]string{"backend", "operation", "status"},
	)

	permissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "organizer_permission_checks_total",
			Help: "Scope permission checks by result",
		},
		[]string{"result"},
	)

	// Provider lookups (permissions, usage, system)
	providerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "organizer_provider_duration_seconds",
			Help:    "External provider lookup duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
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

// RecordRateLimitHit records a rejected request.
func RecordRateLimitHit() {
	rateLimitHits.Inc()
}

// RecordStage records one stage invocation. outcome is "ok", "degraded" or "error".
func RecordStage(stage, outcome string, duration time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	stageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// RecordVerdict records an admission decision.
func RecordVerdict(tier string, ok bool) {
	result := "admitted"
	if !ok {
		result = "rejected"
	}
	verdictsTotal.WithLabelValues(tier, result).Inc()
}

// RecordEnumeration records one page of enumeration.
func RecordEnumeration(files, errors int) {
	filesEnumerated.Add(float64(files))
	enumerationErrors.Add(float64(errors))
}

// RecordClassification records a classification result.
func RecordClassification(category string) {
	classifications.WithLabelValues(category).Inc()
}

// RecordJob records a finished batch job.
func RecordJob(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}

// RecordStoreOperation records a storage backend operation.
func RecordStoreOperation(backend, operation string, duration time.Duration, success bool) {
	storeOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	storeOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}

// RecordProvider records an external provider lookup.
func RecordProvider(provider string, duration time.Duration) {
	providerDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordPermissionCheck records a scope permission check.
func RecordPermissionCheck(allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	permissionChecks.WithLabelValues(result).Inc()
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

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		path := r.Pattern
		if path == "" {
			path = r.URL.Path
		}
		RecordHTTPRequest(r.Method, path, rw.statusCode, time.Since(start))
	})
}
