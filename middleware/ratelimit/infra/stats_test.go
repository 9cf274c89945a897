package infra

import (
	"context"
	"testing"
	"time"

	"exchange-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatsStore_CountsByScopeAndIdentifier(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackIdentifiers(true))
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, domain.StatsEvent{Identifier: "a", Scope: domain.ScopeOrder, Allowed: true}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Identifier: "a", Scope: domain.ScopeOrder}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Identifier: "b", Scope: domain.ScopeWeight, Allowed: true, FailOpen: true}))

	assert.Equal(t, Counters{Allowed: 1, Denied: 1, FailOpen: 1}, s.Total())
	assert.Equal(t, Counters{Allowed: 1, Denied: 1}, s.ByScope()[domain.ScopeOrder])
	assert.Equal(t, Counters{FailOpen: 1}, s.ByIdentifier()["b"])
}

func TestMemoryStatsStore_IdentifiersNotTrackedByDefault(t *testing.T) {
	s := NewMemoryStatsStore()
	_ = s.Record(context.Background(), domain.StatsEvent{Identifier: "a", Allowed: true})
	assert.Empty(t, s.ByIdentifier())
}

func TestPrometheusStatsStore_IncrementsByScopeAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPrometheusStatsStore(reg)
	require.NoError(t, err)

	ctx := context.Background()
	_ = s.Record(ctx, domain.StatsEvent{Scope: domain.ScopeAuthenticated, Allowed: true})
	_ = s.Record(ctx, domain.StatsEvent{Scope: domain.ScopeAuthenticated, Allowed: true})
	_ = s.Record(ctx, domain.StatsEvent{Scope: domain.ScopeAuthenticated})

	assert.Equal(t, 2.0, testutil.ToFloat64(s.Collector().WithLabelValues(domain.ScopeAuthenticated, "allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Collector().WithLabelValues(domain.ScopeAuthenticated, "denied")))

	_, err = NewPrometheusStatsStore(reg)
	assert.Error(t, err, "registering twice on the same registry must fail")
}

func TestRedisStatsStore_NilClientIsNoop(t *testing.T) {
	var s *RedisStatsStore
	assert.NoError(t, s.Record(context.Background(), domain.StatsEvent{}))
	assert.NoError(t, NewRedisStatsStore(nil).Record(context.Background(), domain.StatsEvent{}))
}

func TestRedisStatsStore_ReturnsErrorWhenUnreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer func() { _ = rdb.Close() }()

	s := NewRedisStatsStore(rdb, WithStatsPrefix(":test:"), WithStatsBucket("none"))
	err := s.Record(context.Background(), domain.StatsEvent{Scope: domain.ScopeOrder, Allowed: true})
	assert.Error(t, err)
}

func TestMultiStatsStore_FansOut(t *testing.T) {
	a := NewMemoryStatsStore()
	b := NewMemoryStatsStore()
	m := MultiStatsStore{a, nil, b}

	require.NoError(t, m.Record(context.Background(), domain.StatsEvent{Allowed: true}))
	assert.Equal(t, int64(1), a.Total().Allowed)
	assert.Equal(t, int64(1), b.Total().Allowed)
}
