package usage

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports usage records as Prometheus metrics. It implements Plugin.
type Collector struct {
	requests *prometheus.CounterVec
	tokens   *prometheus.CounterVec
	cost     prometheus.Counter
}

// NewCollector builds the metric set and registers it on the given registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optisuite",
			Name:      "requests_total",
			Help:      "Claude API requests by model and outcome.",
		}, []string{"model", "outcome"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optisuite",
			Name:      "tokens_total",
			Help:      "Tokens consumed by model and direction.",
		}, []string{"model", "direction"}),
		cost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optisuite",
			Name:      "estimated_cost_usd_total",
			Help:      "Estimated upstream spend in USD.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.requests, c.tokens, c.cost)
	}
	return c
}

// HandleUsage updates the counters for a single record.
func (c *Collector) HandleUsage(_ context.Context, record Record) {
	outcome := "success"
	if record.Failed {
		outcome = "failure"
	}
	c.requests.WithLabelValues(record.Model, outcome).Inc()
	if !record.Failed {
		c.tokens.WithLabelValues(record.Model, "input").Add(float64(record.Detail.InputTokens))
		c.tokens.WithLabelValues(record.Model, "output").Add(float64(record.Detail.OutputTokens))
		c.cost.Add(record.Cost)
	}
}
