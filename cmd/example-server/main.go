// example-server é um backend de mentira para desenvolvimento local: responde
// /v1/scan com spines fixos e ecoa qualquer outro /v1/* para conferir o que o
// gateway encaminhou (path, X-Device-Id, corpo).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func main() {
	zl, _ := zap.NewDevelopment()
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()

	addr := ":8000"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(log),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infow("example backend listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalw("server error", "err", err)
	}
}

type spine struct {
	Text       string   `json:"text"`
	Candidates []string `json:"candidates"`
}

type echo struct {
	Method    string `json:"method"`
	Path      string `json:"path"`
	Query     string `json:"query,omitempty"`
	DeviceID  string `json:"device_id"`
	RequestID string `json:"request_id,omitempty"`
	BodyBytes int    `json:"body_bytes"`
}

func newRouter(log *zap.SugaredLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/v1/scan", func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("image")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "image field required"})
			return
		}
		defer f.Close()
		n, _ := io.Copy(io.Discard, f)

		log.Infow("scan received",
			"device_id", r.Header.Get("X-Device-Id"),
			"content_type", hdr.Header.Get("Content-Type"),
			"bytes", n,
		)
		writeJSON(w, http.StatusOK, []spine{
			{Text: "Dune Frank Herbert", Candidates: []string{"9780441172719"}},
			{Text: "Neuromancer William Gibson", Candidates: []string{}},
		})
	})

	r.HandleFunc("/v1/*", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		writeJSON(w, http.StatusOK, echo{
			Method:    r.Method,
			Path:      r.URL.Path,
			Query:     r.URL.RawQuery,
			DeviceID:  r.Header.Get("X-Device-Id"),
			RequestID: r.Header.Get("X-Request-Id"),
			BodyBytes: len(b),
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
