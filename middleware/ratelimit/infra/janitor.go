package infra

import (
	"context"
	"sync"
	"time"

	"exchange-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

const DefaultCleanupEvery = 5 * time.Minute

// Janitor poda periodicamente o estado por chave dos limiters registrados.
//
// Cada Sweeper usa o mesmo lock do caminho quente, então a limpeza pode rodar
// concorrente com as checagens.
type Janitor struct {
	every    time.Duration
	sweepers []domain.Sweeper
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

type JanitorOption func(*Janitor)

func WithCleanupEvery(d time.Duration) JanitorOption {
	return func(j *Janitor) {
		if d > 0 {
			j.every = d
		}
	}
}

func WithJanitorLogger(l *zap.Logger) JanitorOption {
	return func(j *Janitor) {
		if l != nil {
			j.logger = l
		}
	}
}

func WithJanitorClock(now func() time.Time) JanitorOption {
	return func(j *Janitor) {
		if now != nil {
			j.now = now
		}
	}
}

func NewJanitor(sweepers []domain.Sweeper, opts ...JanitorOption) *Janitor {
	j := &Janitor{
		every:    DefaultCleanupEvery,
		sweepers: sweepers,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Janitor) CleanupEvery() time.Duration { return j.every }

// RunOnce executa uma passada de limpeza e retorna o total de chaves removidas.
func (j *Janitor) RunOnce(now time.Time) int {
	evicted := 0
	for _, s := range j.sweepers {
		evicted += s.Sweep(now)
	}
	if evicted > 0 {
		j.logger.Debug("rate limit cleanup", zap.Int("evicted", evicted))
	}
	return evicted
}

// Start inicia a goroutine de limpeza. Pare cancelando o contexto ou com Stop.
// Chamadas repetidas são ignoradas.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	j.started = true

	ctx, j.cancel = context.WithCancel(ctx)
	j.done = make(chan struct{})

	t := time.NewTicker(j.every)
	go func() {
		defer close(j.done)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				j.RunOnce(j.now())
			}
		}
	}()
}

// Stop para a goroutine e espera ela terminar.
func (j *Janitor) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
