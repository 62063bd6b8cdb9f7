package ratelimit

import (
	"net/http"
	"time"

	"edge-gateway/middleware/httperr"
	"edge-gateway/middleware/ratelimit/application"
	"edge-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	AcquireTimeout time.Duration
}

// ConcurrencyMiddleware limita quantos requests ficam em processamento ao
// mesmo tempo. Sem vaga dentro do timeout: 503 SERVER_BUSY.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				httperr.Write(w, httperr.ErrServerBusy)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
