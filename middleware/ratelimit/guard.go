package ratelimit

import (
	"net/http"

	"exchange-gateway/middleware/ratelimit/application"
	"exchange-gateway/middleware/ratelimit/domain"
)

// GuardOptions configura um limite único por identidade, independente do tier.
type GuardOptions struct {
	Checker    domain.Checker
	Service    *application.Service
	IdentityFn IdentityFunc
	// Scope vai para log/estatística. Padrão: domain.ScopeGeneral.
	Scope string
	// Endpoint fixa o endpoint da chave; vazio usa r.URL.Path.
	Endpoint string
}

// Guard aplica Checker (ex.: infra.AdaptiveLimiter) com custo 1 por requisição.
func Guard(opts GuardOptions) func(next http.Handler) http.Handler {
	if opts.Checker == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.IdentityFn == nil {
		opts.IdentityFn = DefaultIdentityFunc("", false)
	}
	if opts.Scope == "" {
		opts.Scope = domain.ScopeGeneral
	}
	if opts.Service == nil {
		opts.Service = application.NewService(nil, nil)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := opts.IdentityFn(r)
			endpoint := opts.Endpoint
			if endpoint == "" {
				endpoint = r.URL.Path
			}

			req := application.Request{Identifier: id.ID, Scope: opts.Scope, Method: r.Method, Path: r.URL.Path}
			res := opts.Service.Decide(r.Context(), req, func() domain.Result {
				return opts.Checker.CheckAndConsume(id.ID, endpoint, 1)
			})

			if !admit(w, res) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
