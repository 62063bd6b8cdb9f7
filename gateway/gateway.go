// Package gateway monta o roteador chi com a cadeia de ingress completa.
package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"edge-gateway/metrics"
	"edge-gateway/middleware/accesslog"
	"edge-gateway/middleware/body"
	"edge-gateway/middleware/httperr"
	"edge-gateway/middleware/identity"
	"edge-gateway/middleware/ratelimit"
	"edge-gateway/middleware/ratelimit/domain"
	"edge-gateway/middleware/ratelimit/infra"
	"edge-gateway/middleware/security"
	"edge-gateway/middleware/upload"
	"edge-gateway/proxy"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Config struct {
	BackendURL *url.URL

	MaxUploadBytes int64
	JSONBodyLimit  int64

	Window domain.Rule
	Burst  domain.Rule

	SuspiciousMax    int64
	SuspiciousWindow time.Duration

	CookieSecure bool
	// KeyHeader só deve ser usado atrás de um proxy confiável que sobrescreve
	// o header; vindo do cliente, o valor pode mudar a cada request.
	KeyHeader           string
	TrustXFF            bool
	AddRateLimitHeaders bool

	ConcurrencyMax     int
	ConcurrencyTimeout time.Duration

	MetricsEnabled bool
	// StatsDebug soma as decisões em memória e serve GET /debug/ratelimit.
	StatsDebug bool
}

// DefaultConfig tem os mesmos padrões das variáveis de ambiente.
func DefaultConfig() Config {
	u, _ := url.Parse("http://localhost:8000")
	return Config{
		BackendURL:       u,
		MaxUploadBytes:   10 << 20,
		JSONBodyLimit:    1 << 20,
		Window:           domain.Rule{Max: 60, Window: 5 * time.Minute},
		Burst:            domain.Rule{Max: 20, Window: time.Second},
		SuspiciousMax:    10,
		SuspiciousWindow: time.Minute,
		ConcurrencyMax:   100,
		MetricsEnabled:   true,
	}
}

// Deps são as peças com estado. Campos nil recebem uma implementação em
// memória; quem precisa varrer ou fechar os stores deve criá-los e passá-los.
type Deps struct {
	WindowStore domain.RateStore
	BurstStore  domain.RateStore
	Stats       domain.StatsStore

	Classifier *security.Classifier
	Tracker    *security.Tracker

	Transport http.RoundTripper
	Logger    *zap.SugaredLogger
	Now       func() time.Time
}

func New(cfg Config, deps Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if deps.WindowStore == nil {
		deps.WindowStore = infra.NewMemoryStore()
	}
	if deps.BurstStore == nil {
		deps.BurstStore = infra.NewMemoryStore()
	}
	if deps.Stats == nil {
		deps.Stats = infra.NewPrometheusStatsStore()
	}
	if deps.Classifier == nil {
		deps.Classifier = security.NewClassifier(security.DefaultRules())
	}
	if deps.Tracker == nil {
		deps.Tracker = security.NewTracker(cfg.SuspiciousWindow)
	}
	if deps.Transport == nil {
		deps.Transport = proxy.NewTransport(0)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	var debugStats *infra.MemoryStatsStore
	if cfg.StatsDebug {
		debugStats = infra.NewMemoryStatsStore()
		deps.Stats = infra.MultiStatsStore{deps.Stats, debugStats}
	}

	clientKey := ratelimit.DefaultKeyFunc(cfg.KeyHeader, cfg.TrustXFF)
	clientAddr := ratelimit.DefaultKeyFunc("", cfg.TrustXFF)

	r := chi.NewRouter()
	r.Use(
		httperr.Recoverer(log),
		middleware.RequestID,
		exposeRequestID,
		accesslog.Middleware(accesslog.Options{
			Logger: log,
			KeyFn:  clientAddr,
			Skip:   skipAccessLog,
		}),
		ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
			Max:            cfg.ConcurrencyMax,
			AcquireTimeout: cfg.ConcurrencyTimeout,
		}),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) { httperr.Write(w, httperr.ErrNotFound) })
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) { httperr.Write(w, httperr.ErrMethodNotAllowed) })

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}
	if debugStats != nil {
		r.Get("/debug/ratelimit", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, debugStats.Snapshot())
		})
	}

	scan := proxy.NewScanHandler(proxy.ScanOptions{
		Target:    cfg.BackendURL,
		Transport: deps.Transport,
		Logger:    log.With("route", "scan"),
	})
	admin := proxy.NewReverseProxy(proxy.ReverseOptions{
		Name:      "admin",
		Target:    cfg.BackendURL,
		Transport: deps.Transport,
		Logger:    log,
	})
	generic := proxy.NewReverseProxy(proxy.ReverseOptions{
		Name:      "api",
		Target:    cfg.BackendURL,
		Transport: deps.Transport,
		Logger:    log,
	})
	validator := upload.NewValidator(cfg.MaxUploadBytes)

	r.Route("/api", func(api chi.Router) {
		api.Use(
			security.Middleware(security.Options{
				Classifier: deps.Classifier,
				Tracker:    deps.Tracker,
				Max:        cfg.SuspiciousMax,
				KeyFn:      clientAddr,
				Logger:     log,
				Now:        deps.Now,
			}),
			ratelimit.Middleware(ratelimit.Options{
				Name:                "window",
				Store:               deps.WindowStore,
				Rule:                cfg.Window,
				Stats:               deps.Stats,
				KeyFn:               clientKey,
				Code:                "RATE_LIMITED",
				Message:             "rate limit exceeded, try again later",
				AddRateLimitHeaders: cfg.AddRateLimitHeaders,
				Logger:              log,
				Now:                 deps.Now,
			}),
			ratelimit.Middleware(ratelimit.Options{
				Name:    "burst",
				Store:   deps.BurstStore,
				Rule:    cfg.Burst,
				Stats:   deps.Stats,
				KeyFn:   clientKey,
				Code:    "BURST_LIMITED",
				Message: "too many requests in a short time, slow down",
				Logger:  log,
				Now:     deps.Now,
			}),
			identity.Middleware(identity.Options{Secure: cfg.CookieSecure, Logger: log}),
			body.JSON(cfg.JSONBodyLimit),
		)

		api.With(upload.Middleware(validator, log)).Post("/scan", scan.ServeHTTP)
		api.Handle("/admin", admin)
		api.Handle("/admin/*", admin)
		api.Handle("/*", generic)
	})

	return r
}

func skipAccessLog(r *http.Request) bool {
	switch r.URL.Path {
	case "/health", "/metrics", "/debug/ratelimit":
		return true
	}
	return false
}

func exposeRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// BackendURL valida e normaliza a URL base do backend.
func BackendURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(raw), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute http(s)", raw)
	}
	return u, nil
}
