package domain

import (
	"context"
	"time"
)

// Escopos conhecidos de decisão. Usados como dimensão nas estatísticas.
const (
	ScopeAuthenticated   = "tier:authenticated"
	ScopeUnauthenticated = "tier:unauthenticated"
	ScopeOrder           = "exchange:order"
	ScopeBatchOrder      = "exchange:batch_order"
	ScopeWeight          = "exchange:weight"
	ScopeWebSocket       = "ws:message"
	ScopeWebSocketStream = "ws:stream"
	ScopeGeneral         = "general"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas
// e podem ser usadas para web, WebSocket, etc.
//
// Observação: cuidado com cardinalidade (ex.: salvar Identifier/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Identifier string
	Scope      string
	Allowed    bool
	FailOpen   bool

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// O middleware deve tratar erro como best-effort (não derrubar request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
