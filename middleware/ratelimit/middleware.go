package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"exchange-gateway/middleware/ratelimit/application"
	"exchange-gateway/middleware/ratelimit/domain"
)

const DefaultAPIKeyHeader = "X-Api-Key"

// Identity é o chamador resolvido na borda: ID já "hasheado" e se veio com API key.
type Identity struct {
	ID            string
	Authenticated bool
}

type IdentityFunc func(r *http.Request) Identity

type Options struct {
	Tiers              *application.TieredAccess
	Service            *application.Service
	IdentityFn         IdentityFunc
	APIKeyHeader       string
	TrustXForwardedFor bool
	// EndpointFn define o endpoint da chave. Padrão: r.URL.Path.
	EndpointFn func(r *http.Request) string
}

// hashIdentifier gera um identificador opaco de 128 bits.
func hashIdentifier(kind, value string) string {
	sum := sha256.Sum256([]byte(kind + ":" + value))
	return hex.EncodeToString(sum[:16])
}

// DefaultIdentityFunc usa a API key (autenticado) ou o IP do cliente (anônimo).
func DefaultIdentityFunc(apiKeyHeader string, trustXFF bool) IdentityFunc {
	if apiKeyHeader == "" {
		apiKeyHeader = DefaultAPIKeyHeader
	}
	return func(r *http.Request) Identity {
		if v := strings.TrimSpace(r.Header.Get(apiKeyHeader)); v != "" {
			return Identity{ID: hashIdentifier("key", v), Authenticated: true}
		}
		return Identity{ID: hashIdentifier("ip", ClientIP(r, trustXFF))}
	}
}

// ClientIP extrai o IP do cliente (X-Forwarded-For opcional, senão RemoteAddr).
func ClientIP(r *http.Request, trustXFF bool) string {
	if trustXFF {
		// pega o primeiro IP do X-Forwarded-For (cliente original)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	// fallback: RemoteAddr
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// Middleware aplica o limite por tier (autenticado/anônimo) a cada requisição.
//
// Sem Tiers configurado, é um passthrough. Falha interna do limiter resulta em
// "allow" (ver application.Service).
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Tiers == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.IdentityFn == nil {
		opts.IdentityFn = DefaultIdentityFunc(opts.APIKeyHeader, opts.TrustXForwardedFor)
	}
	if opts.EndpointFn == nil {
		opts.EndpointFn = func(r *http.Request) string { return r.URL.Path }
	}
	if opts.Service == nil {
		opts.Service = application.NewService(nil, nil)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := opts.IdentityFn(r)
			endpoint := opts.EndpointFn(r)

			req := application.Request{
				Identifier: id.ID,
				Scope:      opts.Tiers.Scope(id.Authenticated),
				Method:     r.Method,
				Path:       r.URL.Path,
			}
			res := opts.Service.Decide(r.Context(), req, func() domain.Result {
				return opts.Tiers.CheckLimit(id.ID, endpoint, id.Authenticated)
			})

			if !admit(w, res) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// admit escreve os headers do resultado e, se negado, a resposta 429.
// Resultados fail-open não geram headers.
func admit(w http.ResponseWriter, res domain.Result) bool {
	if res.FailOpen {
		return true
	}
	if rle := NewRateLimitError(res, res.Limit); rle != nil {
		rle.Write(w)
		return false
	}
	writeHeaders(w, Headers(res, res.Limit))
	return true
}
