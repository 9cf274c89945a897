package infra

import (
	"context"
	"errors"

	"exchange-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStatsStore expõe as decisões como contador por escopo/resultado.
// Identificador e path ficam de fora para não explodir a cardinalidade.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
}

func NewPrometheusStatsStore(reg prometheus.Registerer) (*PrometheusStatsStore, error) {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Rate limit decisions by scope and outcome.",
	}, []string{"scope", "outcome"})

	if reg != nil {
		if err := reg.Register(decisions); err != nil {
			return nil, err
		}
	}
	return &PrometheusStatsStore{decisions: decisions}, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.decisions.WithLabelValues(ev.Scope, outcomeField(ev)).Inc()
	return nil
}

// Collector expõe o contador (usado pelos testes).
func (s *PrometheusStatsStore) Collector() *prometheus.CounterVec { return s.decisions }

// MultiStatsStore repassa o evento para várias stores e junta os erros.
type MultiStatsStore []domain.StatsStore

func (m MultiStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		errs = append(errs, s.Record(ctx, ev))
	}
	return errors.Join(errs...)
}
