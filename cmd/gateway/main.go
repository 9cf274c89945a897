package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exchange-gateway/middleware/ratelimit/application"
	"exchange-gateway/middleware/ratelimit/domain"
	"exchange-gateway/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("gateway failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom, err := infra.NewPrometheusStatsStore(reg)
	if err != nil {
		return fmt.Errorf("prometheus stats: %w", err)
	}

	stats := infra.MultiStatsStore{prom}
	if cfg.Stats.Enabled {
		rdb, err := connectRedis(ctx, cfg.Stats)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		stats = append(stats, newRedisStats(rdb, cfg.Stats))
	}

	svc := application.NewService(logger, stats)
	metrics := promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})

	g, err := newGateway(cfg, logger, svc, metrics)
	if err != nil {
		return fmt.Errorf("limiters: %w", err)
	}
	handler, err := g.routes()
	if err != nil {
		return err
	}

	g.janitor.Start(ctx)
	defer g.janitor.Stop()
	if g.adaptive != nil && cfg.Rate.LoadCapacity > 0 {
		go g.inflight.Report(ctx, g.adaptive, cfg.Rate.LoadEvery)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("upstream", cfg.UpstreamURL),
		zap.String("exchange", cfg.ExchangeURL),
	)
	logger.Info("rate limits",
		zap.Bool("general_enabled", cfg.Rate.Enabled),
		zap.Int("general_max", cfg.Rate.MaxRequests),
		zap.Duration("general_window", cfg.Rate.Window),
		zap.Int("tier_auth_max", cfg.Tier.AuthRequests),
		zap.Int("tier_anon_max", cfg.Tier.AnonRequests),
		zap.Int("order_limit", cfg.Exchange.OrderLimit),
		zap.Int("max_weight", cfg.Exchange.MaxWeight),
		zap.Bool("redis_stats", cfg.Stats.Enabled),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func connectRedis(ctx context.Context, cfg statsConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis stats ping: %w", err)
	}
	return rdb, nil
}

func newRedisStats(rdb redis.Cmdable, cfg statsConfig) domain.StatsStore {
	return infra.NewRedisStatsStore(
		rdb,
		infra.WithStatsPrefix(cfg.Prefix),
		infra.WithStatsTTL(cfg.TTL),
		infra.WithStatsBucket(cfg.Bucket),
		infra.WithStatsTrackIdentifiers(cfg.TrackIdentities),
	)
}
