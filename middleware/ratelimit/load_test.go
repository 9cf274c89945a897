package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type loadRecorder struct{ bits atomic.Value }

func (l *loadRecorder) SetSystemLoad(load float64) { l.bits.Store(load) }

func (l *loadRecorder) last() float64 {
	v, _ := l.bits.Load().(float64)
	return v
}

func TestInFlight_TracksConcurrentRequests(t *testing.T) {
	f := &InFlight{Capacity: 4}
	entered := make(chan struct{})
	release := make(chan struct{})

	h := f.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
	}))

	for range 2 {
		go h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		<-entered
	}
	assert.Equal(t, int64(2), f.Current())
	assert.InDelta(t, 0.5, f.Load(), 1e-9)

	sink := &loadRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Report(ctx, sink, 5*time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool { return sink.last() == 0.5 }, time.Second, 5*time.Millisecond)

	close(release)
	assert.Eventually(t, func() bool { return f.Current() == 0 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return sink.last() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestInFlight_NoCapacityMeansNoLoad(t *testing.T) {
	f := &InFlight{}
	assert.Zero(t, f.Load())
}
