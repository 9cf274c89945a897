package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exchange-gateway/middleware/ratelimit"
	"exchange-gateway/middleware/ratelimit/application"
	"exchange-gateway/middleware/ratelimit/domain"
	"exchange-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	// Exemplo: injetando os middlewares diretamente no seu webserver (sem proxy)
	h, janitor, err := newHandler(logger)
	if err != nil {
		logger.Fatal("limiters", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	janitor.Start(ctx)
	defer janitor.Stop()

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newHandler(logger *zap.Logger) (http.Handler, *infra.Janitor, error) {
	tiers, err := application.NewTieredAccess(domain.TierConfig{
		Authenticated:   domain.LimitConfig{MaxRequests: 100, Window: time.Minute},
		Unauthenticated: domain.LimitConfig{MaxRequests: 10, Window: time.Minute, BurstLimit: 3},
	})
	if err != nil {
		return nil, nil, err
	}
	quota, err := application.NewExchangeQuota(domain.DefaultExchangeQuota())
	if err != nil {
		return nil, nil, err
	}

	stats := infra.NewMemoryStatsStore()
	svc := application.NewService(logger, stats)
	janitor := infra.NewJanitor([]domain.Sweeper{tiers, quota}, infra.WithJanitorLogger(logger))

	r := chi.NewRouter()
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		total := stats.Total()
		writeJSON(w, map[string]int64{"allowed": total.Allowed, "denied": total.Denied, "failOpen": total.FailOpen})
	})
	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(ratelimit.Options{
			Tiers:              tiers,
			Service:            svc,
			APIKeyHeader:       "X-Api-Key", // sem o header, o IP identifica o cliente
			TrustXForwardedFor: true,
		}))
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ok\n"))
		})
	})
	r.Group(func(r chi.Router) {
		r.Use(ratelimit.ExchangeMiddleware(ratelimit.ExchangeOptions{Quota: quota, Service: svc}))
		r.Post(ratelimit.OrderPath, func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]string{"status": "accepted"})
		})
	})
	return r, janitor, nil
}
