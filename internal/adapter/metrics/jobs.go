// Package metrics exposes job scheduler metrics in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Strob0t/TenantForge/internal/domain/job"
	"github.com/Strob0t/TenantForge/internal/port/jobqueue"
)

// Jobs holds the scheduler instruments.
type Jobs struct {
	Deliveries *prometheus.CounterVec
	Duplicates *prometheus.CounterVec
	InFlight   *prometheus.GaugeVec
	Duration   *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewJobs registers the instruments on reg. A nil reg uses a fresh registry.
func NewJobs(reg *prometheus.Registry) *Jobs {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Jobs{
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantforge_job_deliveries_total",
			Help: "Job deliveries by queue, kind and outcome",
		}, []string{"queue", "kind", "outcome"}),
		Duplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantforge_job_duplicates_total",
			Help: "Deliveries rejected because the tenant lock was held",
		}, []string{"kind"}),
		InFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tenantforge_jobs_in_flight",
			Help: "Jobs currently running by queue",
		}, []string{"queue"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenantforge_job_duration_seconds",
			Help:    "Job handler duration",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"kind"}),
		gatherer: reg,
	}
}

// Instrument wraps h with delivery, duplicate, in-flight and duration metrics.
func (m *Jobs) Instrument(h jobqueue.Handler) jobqueue.Handler {
	if m == nil {
		return h
	}
	return func(ctx context.Context, env job.Envelope) job.Decision {
		queue := job.QueueLow
		if cfg, ok := job.For(env.Kind); ok {
			queue = cfg.Queue
		}
		kind := string(env.Kind)

		m.InFlight.WithLabelValues(string(queue)).Inc()
		start := time.Now()
		d := h(ctx, env)
		m.Duration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		m.InFlight.WithLabelValues(string(queue)).Dec()

		m.Deliveries.WithLabelValues(string(queue), kind, d.Outcome.String()).Inc()
		if errors.Is(d.Err, job.ErrAlreadyRunning) {
			m.Duplicates.WithLabelValues(kind).Inc()
		}
		return d
	}
}

// Handler serves the registry at /metrics.
func (m *Jobs) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
