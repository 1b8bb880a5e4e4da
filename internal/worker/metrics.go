package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	jobsTotal            *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
	activeJobs           prometheus.Gauge
	outputsTotal         *prometheus.CounterVec
	orientationTotal     *prometheus.CounterVec
	subsampledTotal      prometheus.Counter
	squashedTotal        prometheus.Counter
	tilesTotal           prometheus.Counter
	webhookFailures      *prometheus.CounterVec
	pixelsProcessedTotal prometheus.Counter
	bytesSavedTotal      prometheus.Counter
	computeTimeMSTotal   prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelfix_worker_jobs_total",
			Help: "Total worker jobs by source type and final status.",
		}, []string{"source_type", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelfix_worker_job_duration_seconds",
			Help:    "Total processing duration for each worker job.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_type", "status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelfix_worker_active_jobs",
			Help: "Current number of active normalization jobs in the worker.",
		}),
		outputsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelfix_worker_outputs_total",
			Help: "Total outputs produced by action and result.",
		}, []string{"action", "result"}),
		orientationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelfix_normalize_orientation_total",
			Help: "Normalized images by resolved EXIF orientation.",
		}, []string{"orientation"}),
		subsampledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelfix_normalize_subsampled_total",
			Help: "Images whose decoded raster was detected as subsampled.",
		}),
		squashedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelfix_normalize_squashed_total",
			Help: "Images with a vertical squash ratio below 1.",
		}),
		tilesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelfix_normalize_tiles_total",
			Help: "Total tiles composited during normalization.",
		}),
		webhookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelfix_worker_webhook_failures_total",
			Help: "Webhook deliveries that failed after all attempts.",
		}, []string{"event"}),
		pixelsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelfix_usage_pixels_processed_total",
			Help: "Total pixels processed across all successful jobs.",
		}),
		bytesSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelfix_usage_bytes_saved_total",
			Help: "Total bytes saved across all successful jobs.",
		}),
		computeTimeMSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelfix_usage_compute_time_ms_total",
			Help: "Total compute time in milliseconds across successful jobs.",
		}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.outputsTotal,
		m.orientationTotal,
		m.subsampledTotal,
		m.squashedTotal,
		m.tilesTotal,
		m.webhookFailures,
		m.pixelsProcessedTotal,
		m.bytesSavedTotal,
		m.computeTimeMSTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
