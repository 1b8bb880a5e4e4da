package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	routeJobs      = "/v1/jobs"
	routeJob       = "/v1/jobs/{id}"
	routeJobStart  = "/v1/jobs/{id}/start"
	routeHealthz   = "/healthz"
	routeMetrics   = "/metrics"
	routeUnmatched = "other"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	rateLimitRejected *prometheus.CounterVec
	rateLimitTokens   *prometheus.CounterVec
	jobsCreated       *prometheus.CounterVec
	jobVariants       prometheus.Histogram
	queueEnqueued     *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelfix_api_requests_total",
			Help: "Total HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelfix_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelfix_api_rate_limit_rejections_total",
			Help: "Total API requests rejected by rate limiting.",
		}, []string{"route"}),
		rateLimitTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelfix_api_rate_limit_tokens_total",
			Help: "Rate limit tokens charged to admitted requests.",
		}, []string{"route"}),
		jobsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelfix_api_jobs_created_total",
			Help: "Jobs created, by source type.",
		}, []string{"source_type"}),
		jobVariants: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pixelfix_api_job_variants",
			Help:    "Transform variants requested per created job.",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
		}),
		queueEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelfix_queue_jobs_enqueued_total",
			Help: "Total jobs enqueued to the normalization queue.",
		}, []string{"queue"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestTotal,
		m.requestDuration,
		m.rateLimitRejected,
		m.rateLimitTokens,
		m.jobsCreated,
		m.jobVariants,
		m.queueEnqueued,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observeJobCreated(sourceType string, variants int) {
	m.jobsCreated.WithLabelValues(sourceType).Inc()
	m.jobVariants.Observe(float64(variants))
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		labels := []string{r.Method, routeLabel(r.URL.Path), strconv.Itoa(recorder.status)}
		m.requestTotal.WithLabelValues(labels...).Inc()
		m.requestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}

// routeLabel collapses job ids so label cardinality stays bounded.
func routeLabel(path string) string {
	rest, isJob := strings.CutPrefix(path, routeJobs)
	switch {
	case isJob && strings.Trim(rest, "/") == "":
		return routeJobs
	case isJob && strings.HasPrefix(rest, "/") && strings.HasSuffix(rest, "/start"):
		return routeJobStart
	case isJob && strings.HasPrefix(rest, "/"):
		return routeJob
	case path == routeHealthz:
		return routeHealthz
	case path == routeMetrics:
		return routeMetrics
	default:
		return routeUnmatched
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
