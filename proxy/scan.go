package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"edge-gateway/metrics"
	"edge-gateway/middleware/httperr"
	"edge-gateway/middleware/identity"
	"edge-gateway/middleware/upload"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type ScanOptions struct {
	Target    *url.URL
	Path      string
	Transport http.RoundTripper
	Logger    *zap.SugaredLogger
}

type scanHandler struct {
	client *resty.Client
	path   string
	log    *zap.SugaredLogger
}

// NewScanHandler encaminha o Asset validado (upload.FromContext) para
// <Target>/v1/scan e devolve a resposta do backend como veio.
func NewScanHandler(opts ScanOptions) http.Handler {
	if opts.Path == "" {
		opts.Path = "/v1/scan"
	}
	if opts.Transport == nil {
		opts.Transport = NewTransport(0)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	// cliente sem cookie jar: um Set-Cookie do backend não pode vazar entre devices
	client := resty.NewWithClient(&http.Client{Transport: opts.Transport}).
		SetBaseURL(opts.Target.String()).
		SetLogger(opts.Logger).
		SetRetryCount(0)

	return &scanHandler{client: client, path: opts.Path, log: opts.Logger}
}

func (h *scanHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	asset, ok := upload.FromContext(r.Context())
	if !ok {
		httperr.Write(w, httperr.ErrMissingFile)
		return
	}

	req := h.client.R().
		SetContext(r.Context()).
		SetDoNotParseResponse(true).
		SetMultipartField(asset.Field, filename(asset), asset.SniffedMIME, bytes.NewReader(asset.Data))
	if id, ok := identity.FromContext(r.Context()); ok {
		req.SetHeader(identity.HeaderName, id)
	}
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		req.SetHeader(middleware.RequestIDHeader, reqID)
	}
	if ua := r.UserAgent(); ua != "" {
		req.SetHeader("User-Agent", ua)
	}

	start := time.Now()
	resp, err := req.Post(h.path)
	metrics.UpstreamDuration.WithLabelValues("scan").Observe(time.Since(start).Seconds())
	if err != nil {
		he := classifyUpstreamError(err)
		if he == nil {
			h.log.Debugw("client went away during scan", "fingerprint", asset.Fingerprint())
			return
		}
		metrics.UpstreamRequests.WithLabelValues("scan", "error").Inc()
		h.log.Warnw("scan upstream failed", "code", he.Code, "fingerprint", asset.Fingerprint(), "err", err)
		httperr.Write(w, he)
		return
	}

	raw := resp.RawBody()
	if raw == nil {
		raw = http.NoBody
	}
	defer func() { _ = raw.Close() }()

	status := resp.StatusCode()
	metrics.UpstreamRequests.WithLabelValues("scan", metrics.CodeClass(status)).Inc()
	if ct := resp.Header().Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(status)

	if _, err := io.Copy(flushWriter{w}, raw); err != nil && !errors.Is(err, context.Canceled) {
		// headers já foram; só resta registrar
		h.log.Warnw("scan relay interrupted", "status", status, "err", err)
	}
}

func filename(a *upload.Asset) string {
	if a.Filename != "" {
		return a.Filename
	}
	return "upload"
}

// flushWriter empurra cada bloco ao cliente assim que chega do backend.
type flushWriter struct{ w http.ResponseWriter }

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if fl, ok := f.w.(http.Flusher); ok {
		fl.Flush()
	}
	return n, err
}
