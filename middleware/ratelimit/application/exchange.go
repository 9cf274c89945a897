package application

import (
	"sort"
	"sync"
	"time"

	"exchange-gateway/middleware/ratelimit/domain"
	"exchange-gateway/middleware/ratelimit/infra"
)

// Endpoints sintéticos usados como chave dos limiters dedicados.
const (
	orderEndpoint      = "order"
	batchOrderEndpoint = "batch_order"
	wsEndpoint         = "ws"
)

// ExchangeQuota concentra os orçamentos publicados pela exchange: ordens,
// ordens em lote, peso por endpoint, mensagens de controle WebSocket e slots
// de stream por conexão.
//
// Os limiters por endpoint são criados sob demanda (double-checked locking),
// então nunca existem dois limiters para o mesmo endpoint, e são descartados
// pelo Sweep quando esvaziam.
type ExchangeQuota struct {
	cfg  domain.ExchangeQuotaConfig
	opts []infra.LimiterOption
	now  func() time.Time

	orders      *infra.WindowLimiter
	batchOrders *infra.WindowLimiter
	websocket   *infra.WindowLimiter
	streams     *infra.StreamSlots

	mu      sync.RWMutex
	weights map[string]*infra.WindowLimiter
}

// NewExchangeQuota valida cfg; opts são repassadas a todos os limiters internos.
func NewExchangeQuota(cfg domain.ExchangeQuotaConfig, opts ...infra.LimiterOption) (*ExchangeQuota, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	orders, err := infra.NewSlidingWindowLimiter(domain.LimitConfig{MaxRequests: cfg.OrderLimit, Window: domain.OrderWindow}, opts...)
	if err != nil {
		return nil, err
	}
	batch, err := infra.NewSlidingWindowLimiter(domain.LimitConfig{MaxRequests: cfg.BatchOrderLimit, Window: domain.OrderWindow}, opts...)
	if err != nil {
		return nil, err
	}
	ws, err := infra.NewSlidingWindowLimiter(domain.LimitConfig{MaxRequests: cfg.WebsocketLimit, Window: domain.WebSocketWindow}, opts...)
	if err != nil {
		return nil, err
	}

	q := &ExchangeQuota{
		cfg:         cfg,
		opts:        opts,
		now:         orders.Now,
		orders:      orders,
		batchOrders: batch,
		websocket:   ws,
		streams:     infra.NewStreamSlots(cfg.MaxWebsocketStreams),
		weights:     make(map[string]*infra.WindowLimiter),
	}
	return q, nil
}

func (q *ExchangeQuota) Config() domain.ExchangeQuotaConfig { return q.cfg }

func (q *ExchangeQuota) CheckOrderLimit(identifier string) domain.Result {
	return q.orders.CheckAndConsume(identifier, orderEndpoint, 1)
}

func (q *ExchangeQuota) CheckBatchOrderLimit(identifier string) domain.Result {
	return q.batchOrders.CheckAndConsume(identifier, batchOrderEndpoint, 1)
}

// CheckWeightLimit consome weight do orçamento de 10s do endpoint.
// Peso negativo usa DefaultWeight; peso 0 só consulta.
func (q *ExchangeQuota) CheckWeightLimit(identifier, endpoint string, weight int) domain.Result {
	if weight < 0 {
		weight = q.cfg.DefaultWeight
	}

	// a checagem roda com q.mu preso para o Sweep não descartar o limiter
	// entre a busca e o registro
	q.mu.RLock()
	l, ok := q.weights[endpoint]
	if ok {
		defer q.mu.RUnlock()
		return l.CheckAndConsume(identifier, endpoint, weight)
	}
	q.mu.RUnlock()

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.weightLimiterLocked(endpoint).CheckAndConsume(identifier, endpoint, weight)
}

// weightLimiterLocked exige q.mu preso para escrita.
func (q *ExchangeQuota) weightLimiterLocked(endpoint string) *infra.WindowLimiter {
	if l, ok := q.weights[endpoint]; ok {
		return l
	}
	// cfg já foi validada no construtor, então não há erro aqui
	l, _ := infra.NewWeightedWindowLimiter(domain.LimitConfig{MaxRequests: q.cfg.MaxWeight, Window: domain.WeightWindow}, q.opts...)
	q.weights[endpoint] = l
	return l
}

// Endpoints lista os endpoints com limiter de peso já criado.
func (q *ExchangeQuota) Endpoints() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]string, 0, len(q.weights))
	for ep := range q.weights {
		out = append(out, ep)
	}
	sort.Strings(out)
	return out
}

// CheckWebSocketLimit consome uma mensagem de controle da conexão.
func (q *ExchangeQuota) CheckWebSocketLimit(connectionID string) domain.Result {
	return q.websocket.CheckAndConsume(connectionID, wsEndpoint, 1)
}

// CheckWebSocketStreamLimit registra streamID na conexão.
//
// Re-inscrever um stream já registrado é no-op e não consome slot.
func (q *ExchangeQuota) CheckWebSocketStreamLimit(connectionID, streamID string) domain.Result {
	slots := q.streams.Max()
	now := q.now()

	ok, _, count := q.streams.Register(connectionID, streamID)
	if !ok {
		return domain.Result{
			Allowed:    false,
			Limit:      slots,
			Remaining:  0,
			ResetAt:    now.Add(time.Second),
			RetryAfter: time.Second,
		}
	}
	return domain.Result{
		Allowed:   true,
		Limit:     slots,
		Remaining: slots - count,
		ResetAt:   now,
	}
}

// ReleaseStream libera um slot (unsubscribe).
func (q *ExchangeQuota) ReleaseStream(connectionID, streamID string) bool {
	return q.streams.Unregister(connectionID, streamID)
}

// ReleaseConnection libera os slots e a janela de mensagens da conexão.
// Deve ser chamada por quem gerencia o socket, no fechamento.
func (q *ExchangeQuota) ReleaseConnection(connectionID string) int {
	q.websocket.Reset(connectionID, wsEndpoint)
	return q.streams.Release(connectionID)
}

func (q *ExchangeQuota) StreamCount(connectionID string) int {
	return q.streams.Count(connectionID)
}

// Sweep implementa domain.Sweeper para todos os limiters internos.
// Limiters de peso que ficaram sem nenhuma chave são descartados; o próximo
// uso do endpoint cria outro.
func (q *ExchangeQuota) Sweep(now time.Time) int {
	evicted := q.orders.Sweep(now) + q.batchOrders.Sweep(now) + q.websocket.Sweep(now)

	q.mu.RLock()
	for _, l := range q.weights {
		evicted += l.Sweep(now)
	}
	q.mu.RUnlock()

	q.mu.Lock()
	for ep, l := range q.weights {
		if l.Len() == 0 {
			delete(q.weights, ep)
		}
	}
	q.mu.Unlock()
	return evicted
}
