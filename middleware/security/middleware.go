package security

import (
	"net/http"
	"time"

	"edge-gateway/metrics"
	"edge-gateway/middleware/httperr"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Options struct {
	Classifier *Classifier
	Tracker    *Tracker
	// Max é o limite de requests por endereço dentro da janela do Tracker.
	Max int64
	// KeyFn extrai o endereço do cliente (mesma função do rate limit).
	KeyFn func(r *http.Request) string

	Logger *zap.SugaredLogger
	Now    func() time.Time
}

// Middleware aplica o Classifier e o Tracker.
//
// Todo request conta no Tracker antes da classificação do UA. Um UA
// bloqueado responde 403 mesmo quando o endereço também passou do limite.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Classifier == nil {
		opts.Classifier = NewClassifier(DefaultRules())
	}
	if opts.KeyFn == nil {
		opts.KeyFn = func(r *http.Request) string { return r.RemoteAddr }
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	blockLog := rate.Sometimes{Interval: time.Second}
	suspiciousLog := rate.Sometimes{Interval: time.Second}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			var count int64
			if opts.Tracker != nil {
				count = opts.Tracker.Hit(key, opts.Now())
				metrics.SuspiciousTracked.Set(float64(opts.Tracker.Len()))
			}

			ua := r.UserAgent()
			if opts.Classifier.Classify(ua) == VerdictBlocked {
				metrics.SecurityRejections.WithLabelValues("user_agent").Inc()
				blockLog.Do(func() {
					opts.Logger.Infow("blocked user agent", "key", key, "user_agent", ua, "path", r.URL.Path)
				})
				httperr.Write(w, httperr.ErrBlockedUserAgent)
				return
			}

			if opts.Tracker != nil && opts.Max > 0 && count > opts.Max {
				metrics.SecurityRejections.WithLabelValues("suspicious").Inc()
				suspiciousLog.Do(func() {
					opts.Logger.Warnw("suspicious request rate", "key", key, "count", count, "path", r.URL.Path)
				})
				httperr.Write(w, httperr.RateLimited(
					"SUSPICIOUS_ACTIVITY",
					"unusual request rate from this address",
					opts.Tracker.Window(),
				))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
