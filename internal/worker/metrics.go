package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry           *prometheus.Registry
	jobsTotal          *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
	activeJobs         prometheus.Gauge
	derivativesTotal   *prometheus.CounterVec
	derivativeBytes    *prometheus.CounterVec
	pixelsEmittedTotal prometheus.Counter
	sharpnessScore     prometheus.Histogram
	blurClassTotal     *prometheus.CounterVec
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
			Name: "pixelgrid_worker_jobs_total",
			Help: "Total worker jobs by source type and final status.",
		}, []string{"source_type", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelgrid_worker_job_duration_seconds",
			Help:    "Total processing duration for each worker job.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_type", "status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelgrid_worker_active_jobs",
			Help: "Current number of active derivative jobs in the worker.",
		}),
		derivativesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelgrid_worker_derivatives_total",
			Help: "Total derivatives emitted, by output format.",
		}, []string{"format"}),
		derivativeBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelgrid_worker_derivative_bytes_total",
			Help: "Total encoded derivative bytes emitted, by output format.",
		}, []string{"format"}),
		pixelsEmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelgrid_worker_pixels_emitted_total",
			Help: "Total pixels across all emitted derivatives.",
		}),
		sharpnessScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pixelgrid_quality_sharpness_score",
			Help:    "Laplacian-variance sharpness score of analyzed sources.",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
		blurClassTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelgrid_quality_blur_class_total",
			Help: "Total analyzed sources, by blur classification.",
		}, []string{"class"}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.derivativesTotal,
		m.derivativeBytes,
		m.pixelsEmittedTotal,
		m.sharpnessScore,
		m.blurClassTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
