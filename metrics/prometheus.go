package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusHook exports exchanges and tool samples as Prometheus metrics.
type PrometheusHook struct {
	turnsTotal     *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	tokensTotal    *prometheus.CounterVec
	handoffsTotal  prometheus.Counter
	toolCallsTotal *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
	terminations   prometheus.Counter
}

// NewPrometheusHook registers the concierge metrics under namespace with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusHook(namespace string, reg prometheus.Registerer) *PrometheusHook {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusHook{
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Total number of completed user turns",
			},
			[]string{"agent"},
		),
		turnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "Duration of a user turn in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"agent"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Total number of model tokens used",
			},
			[]string{"type"},
		),
		handoffsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handoffs_total",
				Help:      "Total number of agent handoffs",
			},
		),
		toolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool executions",
			},
			[]string{"agent", "tool", "status"},
		),
		toolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_duration_seconds",
				Help:      "Tool execution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		terminations: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_terminated_total",
				Help:      "Total number of sessions ended by an agent",
			},
		),
	}
}

// ObserveExchange implements Hook.
func (p *PrometheusHook) ObserveExchange(ex Exchange) {
	p.turnsTotal.WithLabelValues(ex.Agent).Inc()
	p.turnDuration.WithLabelValues(ex.Agent).Observe(ex.Duration.Seconds())
	p.tokensTotal.WithLabelValues("prompt").Add(float64(ex.Usage.PromptTokens))
	p.tokensTotal.WithLabelValues("completion").Add(float64(ex.Usage.CompletionTokens))
	p.handoffsTotal.Add(float64(ex.Handoffs))
	if ex.Terminated {
		p.terminations.Inc()
	}
}

// ObserveTool implements ToolObserver.
func (p *PrometheusHook) ObserveTool(s ToolSample) {
	p.toolCallsTotal.WithLabelValues(s.Agent, s.Tool, s.Status).Inc()
	p.toolDuration.WithLabelValues(s.Tool).Observe(s.Duration.Seconds())
}

var (
	_ Hook         = (*PrometheusHook)(nil)
	_ ToolObserver = (*PrometheusHook)(nil)
)
