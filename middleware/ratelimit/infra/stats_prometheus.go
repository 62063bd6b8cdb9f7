package infra

import (
	"context"

	"edge-gateway/metrics"
	"edge-gateway/middleware/ratelimit/domain"
)

// PrometheusStatsStore publica cada decisão em
// gateway_ratelimit_decisions_total{limiter, decision}.
type PrometheusStatsStore struct{}

func NewPrometheusStatsStore() PrometheusStatsStore { return PrometheusStatsStore{} }

func (PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	limiter := ev.Limiter
	if limiter == "" {
		limiter = "default"
	}
	metrics.RateLimitDecisions.WithLabelValues(limiter, ev.Outcome()).Inc()
	return nil
}

// MultiStatsStore repassa o evento para vários stores; devolve o primeiro erro
// mas sempre tenta todos.
type MultiStatsStore []domain.StatsStore

func (m MultiStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
