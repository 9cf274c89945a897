// utilitários de formatação dos headers de rate limit e do erro 429.

package ratelimit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"exchange-gateway/middleware/ratelimit/domain"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

func formatInt(v int) string { return strconv.Itoa(v) }

// Headers converte um Result nos headers de rate limit.
// Retry-After só aparece quando a requisição foi negada.
func Headers(res domain.Result, limit int) http.Header {
	h := make(http.Header, 4)
	h.Set(HeaderLimit, formatInt(limit))
	h.Set(HeaderRemaining, formatInt(max(0, res.Remaining)))
	h.Set(HeaderReset, strconv.FormatInt(res.ResetAt.Unix(), 10))
	if !res.Allowed {
		h.Set(HeaderRetryAfter, formatInt(res.RetryAfterSeconds()))
	}
	return h
}

func writeHeaders(w http.ResponseWriter, h http.Header) {
	for k, v := range h {
		w.Header()[k] = v
	}
}

// RateLimitError é a negação convertida em erro para a borda HTTP.
// O núcleo nunca retorna esse erro; ele só é montado a partir de um Result negado.
type RateLimitError struct {
	Message    string
	RetryAfter int
	Headers    http.Header
}

// NewRateLimitError retorna nil se res foi permitido.
func NewRateLimitError(res domain.Result, limit int) *RateLimitError {
	if res.Allowed {
		return nil
	}
	secs := res.RetryAfterSeconds()
	return &RateLimitError{
		Message:    fmt.Sprintf("Rate limit exceeded, retry after %d seconds", secs),
		RetryAfter: secs,
		Headers:    Headers(res, limit),
	}
}

func (e *RateLimitError) Error() string { return e.Message }

func (e *RateLimitError) Unwrap() error { return domain.ErrRateLimited }

func (e *RateLimitError) StatusCode() int { return http.StatusTooManyRequests }

// IsRateLimitError diz se err (ou algo que ele embrulha) é uma negação.
func IsRateLimitError(err error) bool {
	return errors.Is(err, domain.ErrRateLimited)
}

type errorBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

// Write escreve headers, status 429 e o corpo JSON.
func (e *RateLimitError) Write(w http.ResponseWriter) {
	writeHeaders(w, e.Headers)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode())
	_ = json.NewEncoder(w).Encode(errorBody{Error: e.Message, RetryAfter: e.RetryAfter})
}
