package dialogue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects dialogue-level Prometheus metrics.
//
// Metrics exposed (all namespaced with "dialoggraph_dialogue_"):
//
// 1. turn_latency_ms (histogram): Wall time of HandleTurn.
// Labels: outcome (suspended/terminal/error).
//
// 2. extraction_failures_total (counter): Extraction calls that failed and
// were treated as "nothing extracted".
// Labels: schema.
//
// 3. action_outcomes_total (counter): Terminal actions by result.
// Labels: action, outcome (success/failure).
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	turnLatency        *prometheus.HistogramVec
	extractionFailures *prometheus.CounterVec
	actionOutcomes     *prometheus.CounterVec
}

// NewMetrics creates and registers the dialogue metrics with registry.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		turnLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dialoggraph",
			Subsystem: "dialogue",
			Name:      "turn_latency_ms",
			Help:      "Turn handling duration in milliseconds",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"outcome"}),
		extractionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dialoggraph",
			Subsystem: "dialogue",
			Name:      "extraction_failures_total",
			Help:      "Extraction calls that failed and degraded to no information",
		}, []string{"schema"}),
		actionOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dialoggraph",
			Subsystem: "dialogue",
			Name:      "action_outcomes_total",
			Help:      "Terminal actions by outcome",
		}, []string{"action", "outcome"}),
	}
}

func (m *Metrics) observeTurn(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(outcome).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) extractionFailed(schema string) {
	if m == nil {
		return
	}
	m.extractionFailures.WithLabelValues(schema).Inc()
}

func (m *Metrics) actionOutcome(name string, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.actionOutcomes.WithLabelValues(name, outcome).Inc()
}
