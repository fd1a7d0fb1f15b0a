package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage outcomes
const (
	OutcomeModel    = "model"
	OutcomeFallback = "fallback"
	OutcomeRetained = "retained"
)

// Metrics counts stage outcomes on a private registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	stageOutcomes    *prometheus.CounterVec
	generationErrors *prometheus.CounterVec
	runs             *prometheus.CounterVec
}

// NewMetrics creates and registers the counters
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "page_writer",
			Name:      "stage_outcomes_total",
			Help:      "Artifacts stored per stage, by origin of the stored content.",
		}, []string{"stage", "kind", "outcome"}),
		generationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "page_writer",
			Name:      "generation_errors_total",
			Help:      "Failed generation attempts by role.",
		}, []string{"role"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "page_writer",
			Name:      "runs_total",
			Help:      "Pipeline runs by terminal phase.",
		}, []string{"phase"}),
	}
	m.registry.MustRegister(m.stageOutcomes, m.generationErrors, m.runs)
	return m
}

func (m *Metrics) stageOutcome(stage Stage, kind Kind, outcome string) {
	if m == nil {
		return
	}
	m.stageOutcomes.WithLabelValues(string(stage), string(kind), outcome).Inc()
}

func (m *Metrics) generationError(role string) {
	if m == nil {
		return
	}
	m.generationErrors.WithLabelValues(role).Inc()
}

func (m *Metrics) runFinished(phase Phase) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(phase)).Inc()
}

// Handler exposes the registry for scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
