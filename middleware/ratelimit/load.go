package ratelimit

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

// LoadSink recebe a carga amostrada (ex.: infra.AdaptiveLimiter).
type LoadSink interface {
	SetSystemLoad(load float64)
}

// InFlight conta requisições em andamento e expõe a razão sobre Capacity
// como carga do sistema.
type InFlight struct {
	Capacity int
	n        atomic.Int64
}

func (f *InFlight) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.n.Add(1)
		defer f.n.Add(-1)
		next.ServeHTTP(w, r)
	})
}

func (f *InFlight) Current() int64 { return f.n.Load() }

// Load retorna Current/Capacity. Capacity <= 0 significa sem carga.
func (f *InFlight) Load() float64 {
	if f.Capacity <= 0 {
		return 0
	}
	return float64(f.n.Load()) / float64(f.Capacity)
}

// Report publica Load em sink a cada intervalo até ctx ser cancelado.
func (f *InFlight) Report(ctx context.Context, sink LoadSink, every time.Duration) {
	if every <= 0 {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sink.SetSystemLoad(f.Load())
		}
	}
}
