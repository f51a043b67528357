// Package observability exposes the coordinator's Prometheus metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/foreman/pkg/domain"
)

// Metrics aggregates the counters and histograms the engine surfaces. Each
// instance owns its registry, so tests and embedded deployments never fight
// over the process-global one.
type Metrics struct {
	registry *prometheus.Registry

	passes      *prometheus.CounterVec
	dispatches  *prometheus.CounterVec
	passSeconds prometheus.Histogram
}

// New creates and registers the metric set.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "foreman",
			Name:      "engine_passes_total",
			Help:      "Engine passes by mode and terminal status.",
		}, []string{"mode", "status"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "foreman",
			Name:      "dispatches_total",
			Help:      "Dispatch attempts by outcome.",
		}, []string{"outcome"}),
		passSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "foreman",
			Name:      "engine_pass_duration_seconds",
			Help:      "Wall time of one engine pass.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.passes,
		m.dispatches,
		m.passSeconds,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePass records the outcome of one engine pass.
func (m *Metrics) ObservePass(mode string, result domain.EngineResult, seconds float64) {
	m.passes.WithLabelValues(mode, string(result.Status)).Inc()
	m.passSeconds.Observe(seconds)
	if result.Dispatch != nil {
		outcome := "failure"
		if result.Dispatch.Success {
			outcome = "success"
		}
		m.dispatches.WithLabelValues(outcome).Inc()
	}
}
