// Package metrics exposes Prometheus collectors for planning steps.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// #region stages
// knownStages bounds the stage label of the error counter.
var knownStages = map[string]bool{
	"rollout":   true,
	"posterior": true,
	"select":    true,
	"store":     true,
	"transport": true,
}

func sanitizeStage(stage string) string {
	if knownStages[stage] {
		return stage
	}
	return "unknown"
}

// #endregion stages

// #region collectors
// Metrics holds the planner collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	decisionsTotal    *prometheus.CounterVec
	policiesEvaluated prometheus.Counter
	inferDuration     *prometheus.HistogramVec
	actionsTotal      *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	posteriorMaxMass  prometheus.Histogram
}

// New registers the planner collectors with reg. Passing
// prometheus.DefaultRegisterer exposes them on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		decisionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "planner",
				Name:      "decisions_total",
				Help:      "Planning steps completed by selection level and rollout variant",
			},
			[]string{"level", "variant"},
		),
		policiesEvaluated: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "planner",
				Name:      "policies_evaluated_total",
				Help:      "Policy rollouts scored",
			},
		),
		inferDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "planner",
				Name:      "infer_duration_seconds",
				Help:      "Wall time of one planning step",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"variant"},
		),
		actionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "planner",
				Name:      "selected_actions_total",
				Help:      "Selected action levels by control factor",
			},
			[]string{"factor", "level"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "planner",
				Name:      "errors_total",
				Help:      "Planning failures by stage",
			},
			[]string{"stage"},
		),
		posteriorMaxMass: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "planner",
				Name:      "posterior_max_mass",
				Help:      "Largest policy posterior probability per decision",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
		),
	}
}

// #endregion collectors

// #region observe
// ObserveDecision records one completed planning step.
func (m *Metrics) ObserveDecision(level, variant string, policies int, maxMass float64, action []int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(level, variant).Inc()
	m.policiesEvaluated.Add(float64(policies))
	m.inferDuration.WithLabelValues(variant).Observe(elapsed.Seconds())
	m.posteriorMaxMass.Observe(maxMass)
	for f, a := range action {
		m.actionsTotal.WithLabelValues(strconv.Itoa(f), strconv.Itoa(a)).Inc()
	}
}

// ObserveError counts a failure at stage.
func (m *Metrics) ObserveError(stage string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(sanitizeStage(stage)).Inc()
}

// #endregion observe
