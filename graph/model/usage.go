package model

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pricing defines input and output token costs for a model in USD per 1M
// tokens.
type Pricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Cost returns the cost in USD of one call.
func (p Pricing) Cost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)/1_000_000*p.InputPer1M + float64(outputTokens)/1_000_000*p.OutputPer1M
}

// DefaultPricing lists published prices for the adapters' default models and
// their common alternatives. Prices change; override with WithPricing.
var DefaultPricing = map[string]Pricing{
	"gpt-4o":                   {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":              {InputPer1M: 0.15, OutputPer1M: 0.60},
	"claude-3-5-haiku-latest":  {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-3-5-sonnet-latest": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"gemini-1.5-flash":         {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-1.5-pro":           {InputPer1M: 1.25, OutputPer1M: 5.00},
}

// Usage is the cumulative consumption recorded by a MeteredModel.
type Usage struct {
	Calls        int64
	Failures     int64
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

// MeteredModel wraps a ChatModel and accounts for every call: token usage,
// estimated cost and failures, in memory and optionally as Prometheus
// counters labelled by model name.
//
// Metrics (namespace "dialoggraph", subsystem "model"):
//   - calls_total{model, status}: status is "success" or "error"
//   - tokens_total{model, direction}: direction is "input" or "output"
//   - cost_usd_total{model}: estimated from the pricing table
//
// Models without a price are still counted, at zero cost.
type MeteredModel struct {
	next    ChatModel
	name    string
	pricing Pricing

	calls  *prometheus.CounterVec
	tokens *prometheus.CounterVec
	cost   *prometheus.CounterVec

	mu    sync.Mutex
	usage Usage
}

// MeterOption configures a MeteredModel.
type MeterOption func(*MeteredModel)

// WithPricing overrides the price looked up in DefaultPricing.
func WithPricing(p Pricing) MeterOption {
	return func(m *MeteredModel) {
		m.pricing = p
	}
}

// NewMeteredModel wraps next, reporting under modelName. A nil registry
// keeps the accounting in memory only.
func NewMeteredModel(next ChatModel, modelName string, registry prometheus.Registerer, opts ...MeterOption) *MeteredModel {
	m := &MeteredModel{
		next:    next,
		name:    modelName,
		pricing: DefaultPricing[modelName],
	}
	for _, opt := range opts {
		opt(m)
	}

	if registry != nil {
		factory := promauto.With(registry)
		m.calls = factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dialoggraph",
			Subsystem: "model",
			Name:      "calls_total",
			Help:      "Chat model calls by outcome",
		}, []string{"model", "status"})
		m.tokens = factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dialoggraph",
			Subsystem: "model",
			Name:      "tokens_total",
			Help:      "Tokens consumed by chat model calls",
		}, []string{"model", "direction"})
		m.cost = factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dialoggraph",
			Subsystem: "model",
			Name:      "cost_usd_total",
			Help:      "Estimated chat model cost in USD",
		}, []string{"model"})
	}
	return m
}

// Chat implements ChatModel.
func (m *MeteredModel) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	out, err := m.next.Chat(ctx, messages)
	if err != nil {
		m.mu.Lock()
		m.usage.Calls++
		m.usage.Failures++
		m.mu.Unlock()
		if m.calls != nil {
			m.calls.WithLabelValues(m.name, "error").Inc()
		}
		return out, err
	}

	cost := m.pricing.Cost(out.InputTokens, out.OutputTokens)
	m.mu.Lock()
	m.usage.Calls++
	m.usage.InputTokens += out.InputTokens
	m.usage.OutputTokens += out.OutputTokens
	m.usage.CostUSD += cost
	m.mu.Unlock()

	if m.calls != nil {
		m.calls.WithLabelValues(m.name, "success").Inc()
		m.tokens.WithLabelValues(m.name, "input").Add(float64(out.InputTokens))
		m.tokens.WithLabelValues(m.name, "output").Add(float64(out.OutputTokens))
		m.cost.WithLabelValues(m.name).Add(cost)
	}
	return out, nil
}

// Usage returns the accounting so far.
func (m *MeteredModel) Usage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}
