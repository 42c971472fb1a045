// Package graph provides the core execution engine for dialogue workflows.
package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics provides Prometheus-compatible metrics collection for
// graph execution monitoring in production environments.
//
// Metrics exposed (all namespaced with "dialoggraph_"):
//
// 1. inflight_runs (gauge): Runs currently executing.
// Use: Monitor concurrency across threads.
//
// 2. step_latency_ms (histogram): Node execution duration in milliseconds.
// Labels: node_id, status (success/error/timeout).
// Buckets: [1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000].
// Use: P50/P95/P99 latency per node; extraction nodes dominate.
//
// 3. run_outcomes_total (counter): How runs stopped.
// Labels: node_id (the node that stopped the run), status (suspended/terminal).
// Use: Track where conversations wait and where tasks finish.
//
// Thread IDs are deliberately not used as labels; they are unbounded.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	engine, err := graph.New(g, reduce, graph.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// Thread-safe: All methods use atomic operations or mutex protection.
type PrometheusMetrics struct {
	inflightRuns prometheus.Gauge
	stepLatency  *prometheus.HistogramVec
	runOutcomes  *prometheus.CounterVec

	registry prometheus.Registerer

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers the engine metrics with registry.
//
// If registry is nil, prometheus.DefaultRegisterer is used. Registering twice
// with the same registry panics, as with any promauto metric; use a fresh
// prometheus.NewRegistry() per engine in tests.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		enabled:  true,
	}

	pm.inflightRuns = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "dialoggraph",
		Name:      "inflight_runs",
		Help:      "Current number of workflow runs executing",
	})

	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dialoggraph",
		Name:      "step_latency_ms",
		Help:      "Node execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
	}, []string{"node_id", "status"})

	pm.runOutcomes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dialoggraph",
		Name:      "run_outcomes_total",
		Help:      "Runs that stopped, by stopping node and status",
	}, []string{"node_id", "status"})

	return pm
}

// RecordStepLatency records the execution duration of a node in milliseconds.
//
// status is one of "success", "error" or "timeout".
func (pm *PrometheusMetrics) RecordStepLatency(nodeID string, latency time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.stepLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
}

// IncrementRunOutcome counts a run that stopped at nodeID with status.
func (pm *PrometheusMetrics) IncrementRunOutcome(nodeID string, status Status) {
	if !pm.isEnabled() {
		return
	}
	pm.runOutcomes.WithLabelValues(nodeID, string(status)).Inc()
}

// UpdateInflightRuns adjusts the inflight gauge by delta.
func (pm *PrometheusMetrics) UpdateInflightRuns(delta int) {
	if !pm.isEnabled() {
		return
	}
	pm.inflightRuns.Add(float64(delta))
}

// Disable temporarily disables metric recording (useful for testing).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable().
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// Reset clears gauge values (useful for testing).
// Counters and histograms are cumulative and are not reset.
func (pm *PrometheusMetrics) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.inflightRuns.Set(0)
}

func (pm *PrometheusMetrics) isEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}
