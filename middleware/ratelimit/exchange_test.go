package ratelimit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"exchange-gateway/middleware/ratelimit/application"
	"exchange-gateway/middleware/ratelimit/domain"
	"exchange-gateway/middleware/ratelimit/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExchangeHandler(t *testing.T, cfg domain.ExchangeQuotaConfig, calls *int) http.Handler {
	t.Helper()
	h, _ := newExchangeHandlerWithQuota(t, cfg, calls)
	return h
}

func newExchangeHandlerWithQuota(t *testing.T, cfg domain.ExchangeQuotaConfig, calls *int) (http.Handler, *application.ExchangeQuota) {
	t.Helper()
	q, err := application.NewExchangeQuota(cfg, infra.WithClock(fixedClock))
	require.NoError(t, err)
	return ExchangeMiddleware(ExchangeOptions{Quota: q})(okHandler(calls)), q
}

func exchangeRequest(method, path, apiKey string) *http.Request {
	r := httptest.NewRequest(method, "http://example"+path, nil)
	r.RemoteAddr = "10.0.0.1:1234"
	if apiKey != "" {
		r.Header.Set(DefaultAPIKeyHeader, apiKey)
	}
	return r
}

func TestClassify(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{http.MethodPost, OrderPath, domain.ScopeOrder},
		{http.MethodPost, OrderPath + "/", domain.ScopeOrder},
		{http.MethodPost, BatchOrderPath, domain.ScopeBatchOrder},
		{http.MethodGet, OrderPath, domain.ScopeWeight},
		{http.MethodDelete, OrderPath, domain.ScopeWeight},
		{http.MethodGet, "/api/v3/depth", domain.ScopeWeight},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(tt.method, "http://example"+tt.path, nil)
		assert.Equal(t, tt.want, classify(r), "%s %s", tt.method, tt.path)
	}
}

func TestExchangeMiddleware_OrdersArePerAccount(t *testing.T) {
	calls := 0
	h := newExchangeHandler(t, domain.DefaultExchangeQuota(), &calls)

	for range 5 {
		require.Equal(t, http.StatusOK, serve(h, exchangeRequest(http.MethodPost, OrderPath, "acct-1")).Code)
	}
	w := serve(h, exchangeRequest(http.MethodPost, OrderPath, "acct-1"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get(HeaderRetryAfter))

	assert.Equal(t, http.StatusOK, serve(h, exchangeRequest(http.MethodPost, OrderPath, "acct-2")).Code)
	assert.Equal(t, http.StatusOK, serve(h, exchangeRequest(http.MethodPost, BatchOrderPath, "acct-1")).Code)
	assert.Equal(t, 7, calls)
}

func TestExchangeMiddleware_UsesEndpointWeights(t *testing.T) {
	cfg := domain.DefaultExchangeQuota()
	cfg.MaxWeight = 12
	calls := 0
	h := newExchangeHandler(t, cfg, &calls)

	// exchangeInfo pesa 10
	w := serve(h, exchangeRequest(http.MethodGet, "/api/v3/exchangeInfo", "acct"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get(HeaderRemaining))
	assert.Equal(t, http.StatusTooManyRequests, serve(h, exchangeRequest(http.MethodGet, "/api/v3/exchangeInfo", "acct")).Code)

	// endpoint fora da tabela usa o peso padrão
	w = serve(h, exchangeRequest(http.MethodGet, "/api/v3/unknown", "acct"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "11", w.Header().Get(HeaderRemaining))
}

func TestExchangeMiddleware_UnlistedPathsShareOneLimiter(t *testing.T) {
	cfg := domain.DefaultExchangeQuota()
	cfg.MaxWeight = 3
	calls := 0
	h, q := newExchangeHandlerWithQuota(t, cfg, &calls)

	for i := range 3 {
		w := serve(h, exchangeRequest(http.MethodGet, fmt.Sprintf("/api/v3/random-%d", i), "acct"))
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, serve(h, exchangeRequest(http.MethodGet, "/api/v3/random-99", "acct")).Code)
	assert.Equal(t, []string{UnlistedEndpoint}, q.Endpoints())

	// endpoints da tabela mantêm orçamento próprio
	assert.Equal(t, http.StatusOK, serve(h, exchangeRequest(http.MethodGet, "/api/v3/depth", "acct")).Code)
	assert.Equal(t, []string{UnlistedEndpoint, "/api/v3/depth"}, q.Endpoints())
}

func TestExchangeMiddleware_NilQuotaIsPassthrough(t *testing.T) {
	calls := 0
	h := ExchangeMiddleware(ExchangeOptions{})(okHandler(&calls))
	assert.Equal(t, http.StatusOK, serve(h, exchangeRequest(http.MethodPost, OrderPath, "")).Code)
	assert.Equal(t, 1, calls)
}
