package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the orchestrator. Per-attempt
// counters make individual retry and fallback attempts observable even though
// the usage tracker records one outcome per terminal request.
type Metrics struct {
	RequestTotal      *prometheus.CounterVec
	AttemptTotal      *prometheus.CounterVec
	RequestDurationMs *prometheus.HistogramVec
	TokensTotal       *prometheus.CounterVec
	CostUSDTotal      *prometheus.CounterVec
	TruncationTotal   *prometheus.CounterVec
	FallbackTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_request_total",
			Help: "Total generation requests by terminal status.",
		}, []string{"provider", "model", "status", "error_class"}),

		AttemptTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_attempt_total",
			Help: "Individual provider dispatch attempts, including retries and fallbacks.",
		}, []string{"provider", "model", "result"}),

		RequestDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scribe_request_duration_ms",
			Help:    "End-to-end generation request duration in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"provider", "model"}),

		TokensTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_tokens_total",
			Help: "Total tokens processed.",
		}, []string{"provider", "model", "direction"}),

		CostUSDTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_cost_usd_total",
			Help: "Estimated total cost in USD.",
		}, []string{"provider", "model"}),

		TruncationTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_truncation_total",
			Help: "Prompts truncated to fit a model context window.",
		}, []string{"provider", "model"}),

		FallbackTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_fallback_total",
			Help: "Fallback transitions from one provider to another.",
		}, []string{"from", "to"}),
	}
}

// RequestLabels holds the label values for recording a terminal request.
type RequestLabels struct {
	Provider     string
	Model        string
	Status       string
	ErrorClass   string
	DurationMs   float64
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// RecordRequest records metrics for a terminal request.
func (m *Metrics) RecordRequest(labels RequestLabels) {
	m.RequestTotal.WithLabelValues(labels.Provider, labels.Model, labels.Status, labels.ErrorClass).Inc()
	m.RequestDurationMs.WithLabelValues(labels.Provider, labels.Model).Observe(labels.DurationMs)

	if labels.InputTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Provider, labels.Model, "input").Add(float64(labels.InputTokens))
	}
	if labels.OutputTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Provider, labels.Model, "output").Add(float64(labels.OutputTokens))
	}
	if labels.CostUSD > 0 {
		m.CostUSDTotal.WithLabelValues(labels.Provider, labels.Model).Add(labels.CostUSD)
	}
}

// RecordAttempt records one provider dispatch attempt.
func (m *Metrics) RecordAttempt(provider, model, result string) {
	m.AttemptTotal.WithLabelValues(provider, model, result).Inc()
}

// RecordTruncation records a context-window truncation.
func (m *Metrics) RecordTruncation(provider, model string) {
	m.TruncationTotal.WithLabelValues(provider, model).Inc()
}

// RecordFallback records a provider fallback transition.
func (m *Metrics) RecordFallback(from, to string) {
	m.FallbackTotal.WithLabelValues(from, to).Inc()
}
