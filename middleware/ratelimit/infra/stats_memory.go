package infra

import (
	"context"
	"sync"

	"exchange-gateway/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed  int64
	Denied   int64
	FailOpen int64
}

func (c *Counters) add(ev domain.StatsEvent) {
	switch {
	case ev.FailOpen:
		c.FailOpen++
	case ev.Allowed:
		c.Allowed++
	default:
		c.Denied++
	}
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu           sync.Mutex
	total        Counters
	byScope      map[string]Counters
	byIdentifier map[string]Counters

	trackIdentifiers bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackIdentifiers(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackIdentifiers = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byScope:      make(map[string]Counters),
		byIdentifier: make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev)

	c := s.byScope[ev.Scope]
	c.add(ev)
	s.byScope[ev.Scope] = c

	if s.trackIdentifiers && ev.Identifier != "" {
		k := s.byIdentifier[ev.Identifier]
		k.add(ev)
		s.byIdentifier[ev.Identifier] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByScope() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byScope))
	for k, v := range s.byScope {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByIdentifier() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byIdentifier))
	for k, v := range s.byIdentifier {
		out[k] = v
	}
	return out
}
