package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"math"
	"time"
)

// BurstWindow é a sub-janela curta usada pelo limite de rajada.
const BurstWindow = time.Second

// Key identifica o estado de janela de um chamador em um endpoint.
//
// Identifier é um token opaco e já "hasheado" pela camada de transporte
// (API key ou IP). Nunca é interpretado aqui.
type Key struct {
	Identifier string
	Endpoint   string
}

func NewKey(identifier, endpoint string) Key {
	return Key{Identifier: identifier, Endpoint: endpoint}
}

// String retorna a forma composta `identifier:endpoint`.
func (k Key) String() string { return k.Identifier + ":" + k.Endpoint }

// Entry é uma requisição admitida dentro da janela.
type Entry struct {
	At     time.Time
	Weight int
}

// LimitConfig descreve uma janela deslizante.
//
// MaxRequests é reaproveitado como orçamento de peso nos limiters ponderados.
// BurstLimit = 0 desativa a sub-janela de rajada.
type LimitConfig struct {
	MaxRequests int
	Window      time.Duration
	BurstLimit  int
}

// Validate retorna *ConfigurationError quando a configuração não é utilizável.
func (c LimitConfig) Validate() error {
	if c.MaxRequests <= 0 {
		return &ConfigurationError{Field: "MaxRequests", Value: c.MaxRequests}
	}
	if c.Window <= 0 {
		return &ConfigurationError{Field: "Window", Value: c.Window}
	}
	if c.BurstLimit < 0 {
		return &ConfigurationError{Field: "BurstLimit", Value: c.BurstLimit}
	}
	return nil
}

// Result é o resultado de uma checagem de admissão.
//
// Invariante: Allowed=false implica Remaining=0 e RetryAfter>0.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter só é preenchido quando a requisição foi negada.
	RetryAfter time.Duration
	// Weight é o uso ponderado da janela após a decisão (limiters ponderados).
	// Em uma negação é o uso anterior, já que nada foi registrado.
	Weight int
	// FailOpen indica que a decisão foi "allow" por erro interno do limiter.
	FailOpen bool
}

// RetryAfterSeconds arredonda RetryAfter para cima em segundos inteiros (mínimo 1).
// Retorna 0 quando a requisição foi permitida.
func (r Result) RetryAfterSeconds() int {
	if r.Allowed {
		return 0
	}
	secs := int(math.Ceil(r.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Allow é um Result permitido sem estado associado.
func Allow(limit int, now time.Time) Result {
	return Result{Allowed: true, Limit: limit, Remaining: limit, ResetAt: now}
}

// Checker é qualquer coisa que decide a admissão de uma chave consumindo `cost`.
type Checker interface {
	CheckAndConsume(identifier, endpoint string, cost int) Result
}

// Sweeper é implementado por quem mantém estado por chave que precisa ser
// podado periodicamente (ver infra.Janitor).
type Sweeper interface {
	Sweep(now time.Time) int
}
