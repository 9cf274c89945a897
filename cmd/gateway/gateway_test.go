package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"exchange-gateway/middleware/ratelimit/application"
	"exchange-gateway/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGateway(t *testing.T, extra map[string]string) http.Handler {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "upstream "+r.URL.Path)
	}))
	t.Cleanup(upstream.Close)
	exchange := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "exchange "+r.URL.Path)
	}))
	t.Cleanup(exchange.Close)

	vars := map[string]string{
		"UPSTREAM_URL":           upstream.URL,
		"EXCHANGE_URL":           exchange.URL,
		"TIER_ANON_MAX_REQUESTS": "2",
		"TIER_ANON_BURST":        "0",
	}
	for k, v := range extra {
		vars[k] = v
	}
	cfg, err := parseTestConfig(vars)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	prom, err := infra.NewPrometheusStatsStore(reg)
	require.NoError(t, err)

	logger := zap.NewNop()
	svc := application.NewService(logger, prom)
	g, err := newGateway(cfg, logger, svc, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	require.NoError(t, err)

	h, err := g.routes()
	require.NoError(t, err)
	return h
}

func do(h http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, nil)
	r.RemoteAddr = "10.1.1.1:4444"
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestGateway_HealthzIsNotLimited(t *testing.T) {
	h := newTestGateway(t, nil)
	for range 5 {
		w := do(h, http.MethodGet, "/healthz", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	}
}

func TestGateway_AnonymousTierLimitsUpstream(t *testing.T) {
	h := newTestGateway(t, nil)

	for range 2 {
		w := do(h, http.MethodGet, "/listings", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "upstream /listings", w.Body.String())
	}
	w := do(h, http.MethodGet, "/listings", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// com API key cai no pool autenticado
	w = do(h, http.MethodGet, "/listings", map[string]string{"X-Api-Key": "k"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGateway_ExchangeOrdersAreLimited(t *testing.T) {
	h := newTestGateway(t, map[string]string{"MEXC_ORDER_LIMIT": "2"})
	key := map[string]string{"X-Api-Key": "acct"}

	for range 2 {
		w := do(h, http.MethodPost, "/api/v3/order", key)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "exchange /api/v3/order", w.Body.String())
	}
	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodPost, "/api/v3/order", key).Code)
}

func TestGateway_GeneralLimitAppliesAcrossPaths(t *testing.T) {
	h := newTestGateway(t, map[string]string{"RATE_MAX_REQUESTS": "2"})
	key := map[string]string{"X-Api-Key": "k"}

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/a", key).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/v3/depth", key).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodGet, "/b", key).Code)
}

func TestGateway_MetricsExposeDecisions(t *testing.T) {
	h := newTestGateway(t, nil)
	do(h, http.MethodGet, "/x", nil)

	w := do(h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "gateway_ratelimit_decisions_total"))
}
