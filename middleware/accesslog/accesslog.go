// Package accesslog registra uma linha estruturada por request.
package accesslog

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Options struct {
	Logger *zap.SugaredLogger
	// KeyFn extrai a chave do cliente logada em "client".
	KeyFn func(r *http.Request) string
	// Skip pula paths barulhentos (health checks, scrape do Prometheus).
	Skip func(r *http.Request) bool
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Skip != nil && opts.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				fields := []any{
					"request_id", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
				}
				if opts.KeyFn != nil {
					fields = append(fields, "client", opts.KeyFn(r))
				}
				switch {
				case status >= 500:
					opts.Logger.Warnw("request", fields...)
				default:
					opts.Logger.Infow("request", fields...)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
