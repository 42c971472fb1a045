// Package graph provides the core execution engine for dialogue workflows.
package graph

import (
	"errors"
	"log/slog"
	"time"

	"github.com/dshills/dialoggraph/graph/emit"
)

// Options configures Engine execution behavior.
//
// Zero values are valid; the Engine uses sensible defaults.
type Options struct {
	// MaxSteps limits the number of nodes a single run may execute before it
	// must suspend or terminate. If 0, no limit is enforced.
	MaxSteps int

	// DefaultNodeTimeout bounds every node without a NodePolicy.Timeout.
	// If 0, nodes run until they return.
	DefaultNodeTimeout time.Duration

	// Metrics receives Prometheus observations. Nil disables metrics.
	Metrics *PrometheusMetrics

	// Emitter receives node lifecycle events. Nil means emit.NullEmitter.
	Emitter emit.Emitter

	// Logger receives debug output. Nil discards it.
	Logger *slog.Logger
}

// Option is a functional option for configuring an Engine.
//
// Functional options provide a clean, extensible API for engine configuration:
// - Chainable: engine, err := New(g, reducer, WithMaxSteps(50), WithEmitter(e)).
// - Self-documenting: Option names clearly describe their purpose.
// - Optional: Only specify the configuration you need.
//
// Example:
//
//	engine, err := graph.New(g, reduce,
//	    graph.WithMaxSteps(64),
//	    graph.WithDefaultNodeTimeout(20*time.Second),
//	    graph.WithMetrics(graph.NewPrometheusMetrics(registry)),
//	)
type Option func(*engineConfig) error

// engineConfig is an internal struct used to collect options before applying them to an Engine.
// This indirection allows validation and composition of options.
type engineConfig struct {
	opts Options
}

// WithOptions applies every field of opts at once.
func WithOptions(opts Options) Option {
	return func(cfg *engineConfig) error {
		cfg.opts = opts
		return nil
	}
}

// WithMaxSteps limits a single run to n node executions.
//
// Default: 0 (no limit, use with caution).
//
// Loops are legal as long as they pass through a suspending node; MaxSteps
// catches loops that never do. When exceeded, Run returns an EngineError with
// code "MAX_STEPS_EXCEEDED" wrapping ErrMaxStepsExceeded.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return errors.New("max steps must be >= 0")
		}
		cfg.opts.MaxSteps = n
		return nil
	}
}

// WithDefaultNodeTimeout sets the default execution timeout for all nodes.
//
// Default: 0 (no timeout).
//
// Individual nodes can override this via Graph.Policies. A node that
// exceeds its timeout is expected to degrade and return; the engine records
// the event with status "timeout".
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return errors.New("node timeout must be >= 0")
		}
		cfg.opts.DefaultNodeTimeout = d
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	engine, err := graph.New(g, reduce, graph.WithMetrics(graph.NewPrometheusMetrics(registry)))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Metrics = metrics
		return nil
	}
}

// WithEmitter sets the event sink for node lifecycle events.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Emitter = e
		return nil
	}
}

// WithLogger sets the structured logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Logger = l
		return nil
	}
}
