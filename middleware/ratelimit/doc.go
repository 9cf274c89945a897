// Package ratelimit fornece os adapters HTTP (net/http) do rate limit do gateway.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - infra: janelas deslizantes, store particionado, janitor e stores de estatística
//   - application: quotas da exchange, tiers de acesso e o Service fail-open
//   - ratelimit (este pacote): middlewares HTTP, extração de identidade e tradução para headers/429
//
// Fluxo no gateway:
//
//  1. Resolve a identidade do chamador (API key ou IP, sempre "hasheado")
//  2. Chama a camada application para obter a decisão
//  3. Se negado, responde 429 com Retry-After e corpo JSON
//  4. Se permitido, escreve os headers X-RateLimit-* e chama o próximo handler
//
// Middleware aplica os tiers autenticado/anônimo; ExchangeMiddleware aplica os
// limites publicados pela exchange (ordens, batch e peso por endpoint).
package ratelimit
