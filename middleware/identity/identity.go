// Package identity emite e valida o token de dispositivo carregado no cookie
// device_id. O gateway nunca rejeita por causa dele: token ausente ou
// inválido só gera um novo.
package identity

import (
	"context"
	"net/http"
	"regexp"

	"edge-gateway/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	CookieName = "device_id"
	// HeaderName é o header repassado ao backend.
	HeaderName = "X-Device-Id"

	cookieMaxAge = 365 * 24 * 60 * 60
)

var tokenRe = regexp.MustCompile(`^[A-Za-z0-9_\-:.]{8,128}$`)

// Valid diz se v respeita o formato de token aceito.
func Valid(v string) bool { return tokenRe.MatchString(v) }

type ctxKey struct{}

// WithDevice anexa o id ao contexto.
func WithDevice(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext devolve o id resolvido pelo Middleware.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

type Options struct {
	Secure bool
	// NewID gera tokens novos (padrão uuid.NewString).
	NewID  func() string
	Logger *zap.SugaredLogger
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(CookieName); err == nil && Valid(c.Value) {
				next.ServeHTTP(w, r.WithContext(WithDevice(r.Context(), c.Value)))
				return
			}

			id := opts.NewID()
			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    id,
				Path:     "/",
				MaxAge:   cookieMaxAge,
				HttpOnly: true,
				Secure:   opts.Secure,
				SameSite: http.SameSiteLaxMode,
			})
			metrics.DevicesIssued.Inc()
			opts.Logger.Debugw("issued device id", "path", r.URL.Path)

			next.ServeHTTP(w, r.WithContext(WithDevice(r.Context(), id)))
		})
	}
}
