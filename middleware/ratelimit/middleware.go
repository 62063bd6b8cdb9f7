package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"edge-gateway/middleware/httperr"
	"edge-gateway/middleware/ratelimit/application"
	"edge-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type KeyFunc func(r *http.Request) string

type Options struct {
	// Name identifica a camada em stats/logs e prefixa a chave no store,
	// então "window" e "burst" podem dividir o mesmo RateStore.
	Name  string
	Store domain.RateStore
	Rule  domain.Rule
	Stats domain.StatsStore

	KeyFn KeyFunc
	// KeyHeader troca o endereço de rede por um header como chave. O cliente
	// controla headers e pode girar o valor a cada request, então só serve
	// atrás de um proxy confiável que sobrescreve o header.
	KeyHeader          string
	TrustXForwardedFor bool

	// RouteFn classifica o request para stats (padrão RouteClass).
	RouteFn func(r *http.Request) string

	// Code é o código devolvido no corpo do 429 (RATE_LIMITED, BURST_LIMITED).
	Code    string
	Message string

	AddRateLimitHeaders bool

	Logger *zap.SugaredLogger
	Now    func() time.Time
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

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
}

// Middleware aplica uma regra de janela fixa por chave de cliente.
//
// Bloqueio vira 429 JSON com Retry-After. Falha do store não bloqueia
// ninguém: o request segue e o erro vai para o log.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Store == nil || opts.Rule.Max <= 0 || opts.Rule.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.Name == "" {
		opts.Name = "window"
	}
	if opts.Code == "" {
		opts.Code = "RATE_LIMITED"
	}
	if opts.Message == "" {
		opts.Message = "too many requests, slow down"
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.RouteFn == nil {
		opts.RouteFn = RouteClass
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	svc := application.Service{
		Store: opts.Store,
		Rule:  opts.Rule,
		Now:   opts.Now,
	}

	// um cliente martelando não pode inundar o log
	denyLog := rate.Sometimes{Interval: time.Second}
	errLog := rate.Sometimes{Interval: 5 * time.Second}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			dec, err := svc.Decide(r.Context(), domain.Key(opts.Name+":"+key))
			if err != nil {
				errLog.Do(func() {
					opts.Logger.Warnw("rate limit store failed, allowing request",
						"limiter", opts.Name, "err", err)
				})
			}

			if opts.Stats != nil {
				ev := domain.StatsEvent{
					Limiter: opts.Name,
					Key:     domain.Key(key),
					Allowed: dec.Allowed,
					Route:   opts.RouteFn(r),
					At:      opts.Now(),
				}
				if !dec.Allowed {
					ev.Code = opts.Code
				}
				_ = opts.Stats.Record(r.Context(), ev)
			}

			if opts.AddRateLimitHeaders && dec.Limit > 0 {
				h := w.Header()
				h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
				h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
				if !dec.ResetAt.IsZero() {
					h.Set("X-RateLimit-Reset", formatInt(dec.ResetAt.Unix()))
				}
			}

			if !dec.Allowed {
				denyLog.Do(func() {
					opts.Logger.Infow("rate limit exceeded",
						"limiter", opts.Name,
						"key", key,
						"path", r.URL.Path,
						"retry_after", dec.RetryAfter.String(),
					)
				})
				httperr.Write(w, httperr.RateLimited(opts.Code, opts.Message, dec.RetryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
