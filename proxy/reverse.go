package proxy

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"edge-gateway/metrics"
	"edge-gateway/middleware/body"
	"edge-gateway/middleware/httperr"
	"edge-gateway/middleware/identity"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type ReverseOptions struct {
	// Name vira o label "route" nas métricas ("api", "admin").
	Name      string
	Target    *url.URL
	Transport http.RoundTripper

	// FromPrefix é trocado por ToPrefix no path (padrão /api -> /v1).
	FromPrefix string
	ToPrefix   string

	Logger *zap.SugaredLogger
}

// NewReverseProxy devolve o proxy genérico.
func NewReverseProxy(opts ReverseOptions) http.Handler {
	if opts.Name == "" {
		opts.Name = "api"
	}
	if opts.FromPrefix == "" {
		opts.FromPrefix = "/api"
	}
	if opts.ToPrefix == "" {
		opts.ToPrefix = "/v1"
	}
	if opts.Transport == nil {
		opts.Transport = NewTransport(0)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = RewritePath(pr.In.URL.Path, opts.FromPrefix, opts.ToPrefix)
			// segmentos escapados (a%2Fb) chegam ao backend como vieram
			pr.Out.URL.RawPath = ""
			if pr.In.URL.RawPath != "" {
				pr.Out.URL.RawPath = RewritePath(pr.In.URL.RawPath, opts.FromPrefix, opts.ToPrefix)
			}
			pr.SetURL(opts.Target)
			pr.SetXForwarded()

			// o valor do cliente nunca chega ao backend
			pr.Out.Header.Del(identity.HeaderName)
			if id, ok := identity.FromContext(pr.In.Context()); ok {
				pr.Out.Header.Set(identity.HeaderName, id)
			}
			if reqID := middleware.GetReqID(pr.In.Context()); reqID != "" {
				pr.Out.Header.Set(middleware.RequestIDHeader, reqID)
			}

			if b, ok := body.JSONFromContext(pr.In.Context()); ok {
				pr.Out.Body = io.NopCloser(bytes.NewReader(b))
				pr.Out.GetBody = func() (io.ReadCloser, error) {
					return io.NopCloser(bytes.NewReader(b)), nil
				}
				pr.Out.ContentLength = int64(len(b))
				pr.Out.Header.Del("Content-Length")
				pr.Out.Header.Set("Content-Type", "application/json")
			}
		},
		Transport:     opts.Transport,
		FlushInterval: -1,
		ModifyResponse: func(resp *http.Response) error {
			metrics.UpstreamRequests.WithLabelValues(opts.Name, metrics.CodeClass(resp.StatusCode)).Inc()
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			he := classifyUpstreamError(err)
			if he == nil {
				opts.Logger.Debugw("client went away before upstream answered", "route", opts.Name, "path", r.URL.Path)
				return
			}
			metrics.UpstreamRequests.WithLabelValues(opts.Name, "error").Inc()
			opts.Logger.Warnw("upstream request failed",
				"route", opts.Name,
				"path", r.URL.Path,
				"code", he.Code,
				"err", err,
			)
			httperr.Write(w, he)
		},
	}

	observed := metrics.UpstreamDuration.WithLabelValues(opts.Name)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rp.ServeHTTP(w, r)
		observed.Observe(time.Since(start).Seconds())
	})
}

// RewritePath troca o prefixo from por to, respeitando a fronteira de
// segmento ("/apix" não casa com "/api").
func RewritePath(path, from, to string) string {
	if path == from {
		return to
	}
	if rest, ok := strings.CutPrefix(path, from+"/"); ok {
		return strings.TrimSuffix(to, "/") + "/" + rest
	}
	return path
}
