// Package body é o estágio de parsing de corpo JSON. O corpo validado e
// compactado fica no contexto e substitui r.Body, para que o proxy consiga
// reenviá-lo com Content-Length correto.
package body

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"edge-gateway/middleware/httperr"
)

type ctxKey struct{}

// JSONFromContext devolve o corpo JSON compactado, se houver.
func JSONFromContext(ctx context.Context) ([]byte, bool) {
	b, ok := ctx.Value(ctxKey{}).([]byte)
	return b, ok
}

func WithJSON(ctx context.Context, b []byte) context.Context {
	return context.WithValue(ctx, ctxKey{}, b)
}

// IsJSON aceita application/json e qualquer tipo +json.
func IsJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// JSON lê corpos JSON até limit bytes. Requests sem corpo ou com outro
// Content-Type passam intactos.
func JSON(limit int64) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 || !IsJSON(r.Header.Get("Content-Type")) {
				next.ServeHTTP(w, r)
				return
			}
			if limit > 0 && r.ContentLength > limit {
				httperr.Write(w, httperr.ErrPayloadTooLarge)
				return
			}

			var src io.Reader = r.Body
			if limit > 0 {
				src = http.MaxBytesReader(w, r.Body, limit)
			}
			raw, err := io.ReadAll(src)
			if err != nil {
				var mbe *http.MaxBytesError
				if errors.As(err, &mbe) {
					httperr.Write(w, httperr.ErrPayloadTooLarge.WithCause(err))
					return
				}
				httperr.Write(w, httperr.ErrInvalidJSON.WithCause(err))
				return
			}
			if len(raw) == 0 {
				// chunked vazio: segue como request sem corpo
				r.Body = http.NoBody
				r.ContentLength = 0
				r.Header.Del("Content-Length")
				next.ServeHTTP(w, r)
				return
			}

			// corpo só com espaços é JSON inválido (Compact recusa)
			var compact bytes.Buffer
			if err := json.Compact(&compact, raw); err != nil {
				httperr.Write(w, httperr.ErrInvalidJSON.WithCause(err))
				return
			}

			b := compact.Bytes()
			r = r.WithContext(WithJSON(r.Context(), b))
			r.Body = io.NopCloser(bytes.NewReader(b))
			r.ContentLength = int64(len(b))
			r.Header.Set("Content-Length", strconv.Itoa(len(b)))
			next.ServeHTTP(w, r)
		})
	}
}
