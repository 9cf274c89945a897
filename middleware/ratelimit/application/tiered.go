package application

import (
	"time"

	"exchange-gateway/middleware/ratelimit/domain"
	"exchange-gateway/middleware/ratelimit/infra"
)

// TieredAccess roteia cada checagem para um de dois pools independentes,
// conforme o chamador esteja autenticado ou não. Os pools nunca dividem
// contadores, mesmo para o mesmo identificador.
type TieredAccess struct {
	cfg             domain.TierConfig
	authenticated   *infra.WindowLimiter
	unauthenticated *infra.WindowLimiter
}

func NewTieredAccess(cfg domain.TierConfig, opts ...infra.LimiterOption) (*TieredAccess, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	auth, err := infra.NewSlidingWindowLimiter(cfg.Authenticated, opts...)
	if err != nil {
		return nil, err
	}
	anon, err := infra.NewSlidingWindowLimiter(cfg.Unauthenticated, opts...)
	if err != nil {
		return nil, err
	}
	return &TieredAccess{cfg: cfg, authenticated: auth, unauthenticated: anon}, nil
}

func (t *TieredAccess) Config() domain.TierConfig { return t.cfg }

func (t *TieredAccess) CheckLimit(identifier, endpoint string, isAuthenticated bool) domain.Result {
	return t.pool(isAuthenticated).CheckAndConsume(identifier, endpoint, 1)
}

// Scope retorna o escopo de estatística do pool escolhido.
func (t *TieredAccess) Scope(isAuthenticated bool) string {
	if isAuthenticated {
		return domain.ScopeAuthenticated
	}
	return domain.ScopeUnauthenticated
}

func (t *TieredAccess) pool(isAuthenticated bool) *infra.WindowLimiter {
	if isAuthenticated {
		return t.authenticated
	}
	return t.unauthenticated
}

func (t *TieredAccess) Sweep(now time.Time) int {
	return t.authenticated.Sweep(now) + t.unauthenticated.Sweep(now)
}
