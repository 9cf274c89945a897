package infra

import (
	"time"

	"exchange-gateway/middleware/ratelimit/domain"
)

// WindowLimiter é um limiter de janela deslizante sobre um WindowStore próprio.
//
// A estratégia de contabilidade (contagem ou soma de pesos) é escolhida na
// construção. Cada instância é dona do seu store; compartilhar uma instância
// entre componentes é decisão explícita de quem a constrói.
type WindowLimiter struct {
	cfg      domain.LimitConfig
	acct     Accounting
	store    *WindowStore
	now      func() time.Time
	limitFor func(identifier string) int
}

type limiterOptions struct {
	now       func() time.Time
	shards    int
	acct      Accounting
	effective func(identifier string) int
}

type LimiterOption func(*limiterOptions)

// WithClock injeta o relógio (usado pelos testes).
func WithClock(now func() time.Time) LimiterOption {
	return func(o *limiterOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func WithShards(n int) LimiterOption {
	return func(o *limiterOptions) { o.shards = n }
}

func WithAccounting(a Accounting) LimiterOption {
	return func(o *limiterOptions) {
		if a != nil {
			o.acct = a
		}
	}
}

// WithEffectiveLimit troca o limite fixo (MaxRequests) por um limite calculado
// por identificador a cada checagem.
func WithEffectiveLimit(fn func(identifier string) int) LimiterOption {
	return func(o *limiterOptions) { o.effective = fn }
}

// NewWindowLimiter valida cfg e retorna *domain.ConfigurationError se inválida.
// Sem WithAccounting, conta requisições.
func NewWindowLimiter(cfg domain.LimitConfig, opts ...LimiterOption) (*WindowLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := limiterOptions{now: time.Now, acct: CountAccounting{}}
	for _, opt := range opts {
		opt(&o)
	}

	l := &WindowLimiter{
		cfg:   cfg,
		acct:  o.acct,
		store: NewWindowStore(cfg.Window, o.shards),
		now:   o.now,
	}
	l.limitFor = func(string) int { return cfg.MaxRequests }
	if o.effective != nil {
		l.limitFor = o.effective
	}
	return l, nil
}

// NewSlidingWindowLimiter cria um limiter por contagem de requisições.
func NewSlidingWindowLimiter(cfg domain.LimitConfig, opts ...LimiterOption) (*WindowLimiter, error) {
	return NewWindowLimiter(cfg, withAccounting(opts, CountAccounting{})...)
}

// NewWeightedWindowLimiter cria um limiter por soma de pesos; cfg.MaxRequests
// é o orçamento de peso da janela.
func NewWeightedWindowLimiter(cfg domain.LimitConfig, opts ...LimiterOption) (*WindowLimiter, error) {
	return NewWindowLimiter(cfg, withAccounting(opts, WeightAccounting{})...)
}

func withAccounting(opts []LimiterOption, a Accounting) []LimiterOption {
	out := make([]LimiterOption, 0, len(opts)+1)
	out = append(out, opts...)
	return append(out, WithAccounting(a))
}

func (l *WindowLimiter) Config() domain.LimitConfig { return l.cfg }

// Now lê o relógio do limiter (o de WithClock, se houver).
func (l *WindowLimiter) Now() time.Time { return l.now() }

// CheckAndConsume decide a admissão de (identifier, endpoint) consumindo cost.
//
// cost=0 é apenas consulta: nunca nega e nunca altera estado.
// Custo negativo é tratado como 1. Uma negação não altera o estado da chave.
func (l *WindowLimiter) CheckAndConsume(identifier, endpoint string, cost int) domain.Result {
	if cost < 0 {
		cost = 1
	}

	key := domain.NewKey(identifier, endpoint)
	limit := l.limitFor(identifier)
	now := l.now()

	var res domain.Result
	l.store.Update(key, now, func(entries []domain.Entry) []domain.Entry {
		res = l.decide(entries, now, limit, cost)
		if !res.Allowed || cost == 0 {
			return entries
		}

		// mantém a ordem de chegada mesmo com relógios lidos fora do lock
		at := now
		if n := len(entries); n > 0 && entries[n-1].At.After(at) {
			at = entries[n-1].At
		}
		entries = append(entries, l.acct.Record(at, cost)...)
		res.ResetAt = entries[0].At.Add(l.cfg.Window)
		return entries
	})
	return res
}

func (l *WindowLimiter) decide(entries []domain.Entry, now time.Time, limit, cost int) domain.Result {
	used := usage(l.acct, entries)
	res := domain.Result{
		Limit:   limit,
		ResetAt: now.Add(l.cfg.Window),
		Weight:  used,
	}
	if len(entries) > 0 {
		res.ResetAt = entries[0].At.Add(l.cfg.Window)
	}

	if cost == 0 {
		res.Allowed = true
		res.Remaining = max(0, limit-used)
		return res
	}

	if l.cfg.BurstLimit > 0 {
		if wait, ok := burstWait(entries, now, l.cfg.BurstLimit); !ok {
			res.RetryAfter = wait
			return res
		}
	}

	// compara sem somar: cost pode ser qualquer int não negativo
	if cost > limit-used {
		res.RetryAfter = l.cfg.Window
		if cost <= limit {
			res.RetryAfter = l.waitFor(entries, now, cost-(limit-used))
		}
		return res
	}

	res.Allowed = true
	res.Remaining = limit - used - cost
	res.Weight = used + cost
	return res
}

// waitFor calcula quanto tempo até `excess` unidades saírem da janela.
// Custos maiores que o limite nunca cabem e recebem a janela inteira em decide.
func (l *WindowLimiter) waitFor(entries []domain.Entry, now time.Time, excess int) time.Duration {
	freed := 0
	for _, e := range entries {
		freed += l.acct.Units(e)
		if freed >= excess {
			return e.At.Add(l.cfg.Window).Sub(now)
		}
	}
	return l.cfg.Window
}

// burstWait conta entradas no último segundo. ok=false quando a rajada estourou.
func burstWait(entries []domain.Entry, now time.Time, burst int) (time.Duration, bool) {
	cutoff := now.Add(-domain.BurstWindow)
	i := len(entries)
	for i > 0 && entries[i-1].At.After(cutoff) {
		i--
	}
	recent := entries[i:]
	if len(recent) < burst {
		return 0, true
	}
	oldest := recent[len(recent)-burst]
	return oldest.At.Add(domain.BurstWindow).Sub(now), false
}

// Reset descarta o estado de (identifier, endpoint).
func (l *WindowLimiter) Reset(identifier, endpoint string) {
	l.store.Delete(domain.NewKey(identifier, endpoint))
}

// Sweep implementa domain.Sweeper.
func (l *WindowLimiter) Sweep(now time.Time) int { return l.store.Sweep(now) }

// Len retorna quantas chaves têm estado no store.
func (l *WindowLimiter) Len() int { return l.store.Len() }

func (l *WindowLimiter) identifiers() map[string]struct{} { return l.store.Identifiers() }
