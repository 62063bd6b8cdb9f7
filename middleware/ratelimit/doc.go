// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny, acquire/timeout) sem net/http
//   - infra: implementações concretas (janela fixa em memória, otter e Redis, semáforo, janitor)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai a chave do cliente (IP/header/XFF)
//  2. Chama a camada application para obter a decisão
//  3. Se bloqueado, responde 429 JSON com Retry-After (rate limit) ou 503 (concorrência)
//  4. Se permitido, chama o próximo handler
//
// O gateway monta duas instâncias de Middleware: a janela longa (RATE_MAX em
// RATE_WINDOW, código RATE_LIMITED) e a rajada (BURST_MAX em BURST_WINDOW,
// código BURST_LIMITED).
package ratelimit
