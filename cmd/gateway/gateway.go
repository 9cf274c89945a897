package main

import (
	"encoding/json"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"exchange-gateway/middleware/ratelimit"
	"exchange-gateway/middleware/ratelimit/application"
	"exchange-gateway/middleware/ratelimit/domain"
	"exchange-gateway/middleware/ratelimit/infra"
	"exchange-gateway/middleware/wsgate"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// gateway agrupa os limiters do processo e monta o roteamento HTTP.
type gateway struct {
	cfg     config
	logger  *zap.Logger
	service *application.Service
	metrics http.Handler

	tiers    *application.TieredAccess
	quota    *application.ExchangeQuota
	adaptive *infra.AdaptiveLimiter
	inflight *ratelimit.InFlight
	janitor  *infra.Janitor
}

func newGateway(cfg config, logger *zap.Logger, svc *application.Service, metrics http.Handler, opts ...infra.LimiterOption) (*gateway, error) {
	g := &gateway{
		cfg:      cfg,
		logger:   logger,
		service:  svc,
		metrics:  metrics,
		inflight: &ratelimit.InFlight{Capacity: cfg.Rate.LoadCapacity},
	}

	var err error
	if g.tiers, err = application.NewTieredAccess(cfg.Tier.tiers(), opts...); err != nil {
		return nil, err
	}
	if g.quota, err = application.NewExchangeQuota(cfg.Exchange.quota(), opts...); err != nil {
		return nil, err
	}
	sweepers := []domain.Sweeper{g.tiers, g.quota}
	if cfg.Rate.Enabled {
		if g.adaptive, err = infra.NewAdaptiveLimiter(cfg.Rate.limit(), opts...); err != nil {
			return nil, err
		}
		sweepers = append(sweepers, g.adaptive)
	}

	g.janitor = infra.NewJanitor(sweepers,
		infra.WithCleanupEvery(cfg.CleanupEvery),
		infra.WithJanitorLogger(logger),
	)
	return g, nil
}

func (g *gateway) routes() (http.Handler, error) {
	upstream, err := parseUpstream(g.cfg.UpstreamURL)
	if err != nil {
		return nil, err
	}
	identity := ratelimit.DefaultIdentityFunc(g.cfg.APIKeyHeader, g.cfg.TrustXFF)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(g.inflight.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	if g.metrics != nil {
		r.Handle("/metrics", g.metrics)
	}

	r.Handle("/ws", &wsgate.Handler{
		Quota:    g.quota,
		Service:  g.service,
		Logger:   g.logger.Named("wsgate"),
		Upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	})

	var guard ratelimit.GuardOptions
	if g.adaptive != nil {
		guard = ratelimit.GuardOptions{
			Checker:    g.adaptive,
			Service:    g.service,
			IdentityFn: identity,
			Endpoint:   "*",
		}
	}

	if g.cfg.ExchangeURL != "" {
		exchange, err := parseUpstream(g.cfg.ExchangeURL)
		if err != nil {
			return nil, err
		}
		r.With(
			ratelimit.Guard(guard),
			ratelimit.ExchangeMiddleware(ratelimit.ExchangeOptions{
				Quota:      g.quota,
				Service:    g.service,
				IdentityFn: identity,
			}),
		).Handle("/api/v3/*", g.proxy(exchange))
	}

	r.With(
		ratelimit.Guard(guard),
		ratelimit.Middleware(ratelimit.Options{
			Tiers:      g.tiers,
			Service:    g.service,
			IdentityFn: identity,
		}),
	).Handle("/*", g.proxy(upstream))

	return r, nil
}

func (g *gateway) proxy(target *url.URL) http.Handler {
	p := httputil.NewSingleHostReverseProxy(target)
	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		g.logger.Warn("proxy error",
			zap.String("target", target.Host),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}
	p.FlushInterval = 100 * time.Millisecond
	return p
}
