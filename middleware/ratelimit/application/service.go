package application

import (
	"context"
	"time"

	"exchange-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Request descreve quem está sendo checado, para log e estatística.
type Request struct {
	Identifier string
	Scope      string
	Method     string
	Path       string
}

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas executa a checagem e
// retorna o Result. Um panic dentro do limiter vira "allow" (fail-open) com log:
// defeito de infraestrutura não pode virar indisponibilidade.
type Service struct {
	Logger *zap.Logger
	Stats  domain.StatsStore
	// DenyLog limita a frequência dos logs de negação. nil loga todas.
	DenyLog *rate.Sometimes
}

// NewService cria um Service que loga no máximo uma negação por segundo.
func NewService(logger *zap.Logger, stats domain.StatsStore) *Service {
	return &Service{
		Logger:  logger,
		Stats:   stats,
		DenyLog: &rate.Sometimes{Interval: time.Second},
	}
}

// Decide executa check. check nil permite.
func (s *Service) Decide(ctx context.Context, req Request, check func() domain.Result) (res domain.Result) {
	if check == nil {
		return domain.Result{Allowed: true}
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger().Error("rate limiter failed, allowing request",
				zap.Any("panic", r),
				zap.String("scope", req.Scope),
				zap.String("path", req.Path),
			)
			res = domain.Result{Allowed: true, FailOpen: true}
		}
		s.observe(ctx, req, res)
	}()

	return check()
}

func (s *Service) observe(ctx context.Context, req Request, res domain.Result) {
	if !res.Allowed {
		logDenial := func() {
			s.logger().Info("rate limit exceeded",
				zap.String("scope", req.Scope),
				zap.String("identifier", req.Identifier),
				zap.String("path", req.Path),
				zap.Duration("retry_after", res.RetryAfter),
			)
		}
		if s.DenyLog != nil {
			s.DenyLog.Do(logDenial)
		} else {
			logDenial()
		}
	}

	if s.Stats == nil {
		return
	}
	err := s.Stats.Record(ctx, domain.StatsEvent{
		Identifier: req.Identifier,
		Scope:      req.Scope,
		Allowed:    res.Allowed,
		FailOpen:   res.FailOpen,
		Method:     req.Method,
		Path:       req.Path,
		At:         time.Now(),
	})
	if err != nil {
		s.logger().Warn("rate limit stats", zap.Error(err))
	}
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
