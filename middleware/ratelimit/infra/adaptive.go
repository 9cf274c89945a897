package infra

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"exchange-gateway/middleware/ratelimit/domain"
)

// AdaptiveLimiter é um limiter por contagem cujo limite efetivo encolhe com a
// carga reportada do sistema: floor(base * (1 - load*0.5)).
//
// A carga é por instância. O último limite calculado por identificador fica em
// cache para introspecção e é podado junto com a janela no Sweep.
type AdaptiveLimiter struct {
	*WindowLimiter

	base     int
	loadBits atomic.Uint64

	mu      sync.Mutex
	current map[string]cachedLimit
	// gen avança a cada Sweep; só entradas de gerações anteriores são podadas.
	gen uint64

	// afterSnapshot roda entre a leitura das chaves vivas e a poda (testes).
	afterSnapshot func()
}

type cachedLimit struct {
	limit int
	gen   uint64
}

func NewAdaptiveLimiter(cfg domain.LimitConfig, opts ...LimiterOption) (*AdaptiveLimiter, error) {
	a := &AdaptiveLimiter{
		base:    cfg.MaxRequests,
		current: make(map[string]cachedLimit),
	}
	opts = append(append([]LimiterOption{}, opts...), WithEffectiveLimit(a.effectiveLimit))
	l, err := NewSlidingWindowLimiter(cfg, opts...)
	if err != nil {
		return nil, err
	}
	a.WindowLimiter = l
	return a, nil
}

// SetSystemLoad registra a carga atual, limitada a [0,1]. NaN conta como 0.
func (a *AdaptiveLimiter) SetSystemLoad(load float64) {
	switch {
	case math.IsNaN(load) || load < 0:
		load = 0
	case load > 1:
		load = 1
	}
	a.loadBits.Store(math.Float64bits(load))
}

func (a *AdaptiveLimiter) SystemLoad() float64 {
	return math.Float64frombits(a.loadBits.Load())
}

func (a *AdaptiveLimiter) effectiveLimit(identifier string) int {
	limit := int(math.Floor(float64(a.base) * (1 - a.SystemLoad()*0.5)))

	a.mu.Lock()
	a.current[identifier] = cachedLimit{limit: limit, gen: a.gen}
	a.mu.Unlock()
	return limit
}

// CurrentLimit retorna o último limite calculado para o identificador.
// ok=false se o identificador ainda não foi visto (ou já foi podado).
func (a *AdaptiveLimiter) CurrentLimit(identifier string) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.current[identifier]
	return c.limit, ok
}

// Sweep poda a janela e depois o cache de limites de identificadores sem estado.
// Limites gravados depois do início do Sweep são preservados.
func (a *AdaptiveLimiter) Sweep(now time.Time) int {
	a.mu.Lock()
	a.gen++
	started := a.gen
	a.mu.Unlock()

	evicted := a.WindowLimiter.Sweep(now)
	alive := a.identifiers()
	if a.afterSnapshot != nil {
		a.afterSnapshot()
	}

	a.mu.Lock()
	for id, c := range a.current {
		if c.gen >= started {
			continue
		}
		if _, ok := alive[id]; !ok {
			delete(a.current, id)
		}
	}
	a.mu.Unlock()
	return evicted
}

func (a *AdaptiveLimiter) cachedLimits() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.current)
}
