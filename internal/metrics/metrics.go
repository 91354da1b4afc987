// Package metrics carries the process-wide prometheus registry: adapter
// request counters, latency histograms, circuit-breaker state gauges,
// backfill progress gauges, and stream source gauges. No HTTP mux is
// built here; the registry itself is the deliverable.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric this module exports. Callers embed it in
// a prometheus.Registerer of their choosing (an exporter, a push
// gateway, a test registry).
type Registry struct {
	AdapterRequests    *prometheus.CounterVec
	AdapterLatency     *prometheus.HistogramVec
	CircuitBreakerOpen *prometheus.GaugeVec
	BackfillProgress   *prometheus.GaugeVec
	StreamSource       *prometheus.GaugeVec
	PipelineStepDur    *prometheus.HistogramVec
}

// New constructs a Registry and registers every metric with reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		AdapterRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cryptorun",
			Subsystem: "adapter",
			Name:      "requests_total",
			Help:      "Exchange adapter HTTP requests by venue and outcome.",
		}, []string{"venue", "outcome"}),

		AdapterLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cryptorun",
			Subsystem: "adapter",
			Name:      "request_duration_seconds",
			Help:      "Exchange adapter HTTP request latency by venue.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"venue"}),

		CircuitBreakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cryptorun",
			Subsystem: "guard",
			Name:      "circuit_open",
			Help:      "1 if the provider's circuit breaker is open, else 0.",
		}, []string{"venue"}),

		BackfillProgress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cryptorun",
			Subsystem: "backfill",
			Name:      "cells_completed",
			Help:      "Backfill cells completed by asset class (crypto/traditional).",
		}, []string{"class"}),

		StreamSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cryptorun",
			Subsystem: "stream",
			Name:      "active_source",
			Help:      "1 for the currently active source of a symbol's live stream, else 0.",
		}, []string{"symbol", "source"}),

		PipelineStepDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cryptorun",
			Subsystem: "pipeline",
			Name:      "step_duration_seconds",
			Help:      "Wall-clock duration of a named CLI pipeline step (backfill, etc).",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pipeline", "step"}),
	}

	reg.MustRegister(r.AdapterRequests, r.AdapterLatency, r.CircuitBreakerOpen, r.BackfillProgress, r.StreamSource, r.PipelineStepDur)
	return r
}
