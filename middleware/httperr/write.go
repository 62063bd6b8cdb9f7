package httperr

import (
	"encoding/json"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Body é o envelope JSON de erro devolvido ao cliente.
type Body struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Write traduz err para a resposta HTTP. É o único lugar que serializa erros.
func Write(w http.ResponseWriter, err error) {
	he := From(err)
	if he == nil {
		he = ErrInternal
	}
	if he.RetryAfter > 0 {
		w.Header().Set("Retry-After", RetryAfterSeconds(he.RetryAfter))
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(he.Status)
	_ = json.NewEncoder(w).Encode(Body{Error: he.Message, Code: he.Code})
}

// RetryAfterSeconds arredonda para cima, com mínimo de 1s.
func RetryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

// Recoverer é o catch-all: um panic em qualquer handler vira 500 JSON em vez
// de derrubar o processo.
func Recoverer(log *zap.SugaredLogger) func(next http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// http.ErrAbortHandler é o jeito padrão de abortar a resposta.
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Errorw("panic while handling request",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				Write(w, ErrInternal)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
