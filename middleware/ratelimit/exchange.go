package ratelimit

import (
	"net/http"
	"strings"

	"exchange-gateway/middleware/ratelimit/application"
	"exchange-gateway/middleware/ratelimit/domain"
)

const (
	OrderPath      = "/api/v3/order"
	BatchOrderPath = "/api/v3/batchOrders"
)

// DefaultEndpointWeights são os pesos publicados de alguns endpoints REST da
// exchange. Endpoints fora da tabela usam ExchangeQuotaConfig.DefaultWeight e
// dividem um único orçamento sob UnlistedEndpoint.
var DefaultEndpointWeights = map[string]int{
	"/api/v3/depth":        1,
	"/api/v3/trades":       5,
	"/api/v3/klines":       1,
	"/api/v3/ticker/24hr":  1,
	"/api/v3/ticker/price": 1,
	"/api/v3/exchangeInfo": 10,
	"/api/v3/account":      10,
	"/api/v3/openOrders":   3,
	"/api/v3/allOrders":    10,
	"/api/v3/myTrades":     10,
}

// UnlistedEndpoint é a chave de peso compartilhada pelos caminhos fora da tabela.
const UnlistedEndpoint = "/api/v3/*"

type ExchangeOptions struct {
	Quota      *application.ExchangeQuota
	Service    *application.Service
	IdentityFn IdentityFunc
	Weights    map[string]int
}

// classify decide qual orçamento da exchange uma requisição consome.
func classify(r *http.Request) string {
	path := strings.TrimSuffix(r.URL.Path, "/")
	if r.Method == http.MethodPost {
		switch path {
		case OrderPath:
			return domain.ScopeOrder
		case BatchOrderPath:
			return domain.ScopeBatchOrder
		}
	}
	return domain.ScopeWeight
}

// ExchangeMiddleware protege as chamadas repassadas à API REST da exchange
// com os limites publicados por ela, antes de gastar orçamento real.
func ExchangeMiddleware(opts ExchangeOptions) func(next http.Handler) http.Handler {
	if opts.Quota == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.IdentityFn == nil {
		opts.IdentityFn = DefaultIdentityFunc("", false)
	}
	if opts.Weights == nil {
		opts.Weights = DefaultEndpointWeights
	}
	if opts.Service == nil {
		opts.Service = application.NewService(nil, nil)
	}
	defaultWeight := opts.Quota.Config().DefaultWeight

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := opts.IdentityFn(r)
			scope := classify(r)
			endpoint := strings.TrimSuffix(r.URL.Path, "/")

			req := application.Request{
				Identifier: id.ID,
				Scope:      scope,
				Method:     r.Method,
				Path:       endpoint,
			}
			res := opts.Service.Decide(r.Context(), req, func() domain.Result {
				switch scope {
				case domain.ScopeOrder:
					return opts.Quota.CheckOrderLimit(id.ID)
				case domain.ScopeBatchOrder:
					return opts.Quota.CheckBatchOrderLimit(id.ID)
				}
				weight, ok := opts.Weights[endpoint]
				if !ok {
					return opts.Quota.CheckWeightLimit(id.ID, UnlistedEndpoint, defaultWeight)
				}
				return opts.Quota.CheckWeightLimit(id.ID, endpoint, weight)
			})

			if !admit(w, res) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
