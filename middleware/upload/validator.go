package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"edge-gateway/metrics"
	"edge-gateway/middleware/httperr"

	"go.uber.org/zap"
)

// folga para boundary, headers das partes e campos pequenos extras
const multipartOverhead = 1 << 20

type Validator struct {
	MaxBytes int64
	Field    string
	Allowed  []string
}

func NewValidator(maxBytes int64) *Validator {
	return &Validator{
		MaxBytes: maxBytes,
		Field:    "image",
		Allowed:  DefaultAllowed,
	}
}

// Parse lê o multipart em streaming até achar o campo da imagem e devolve o
// Asset validado. Erros são sempre *httperr.Error.
func (v *Validator) Parse(w http.ResponseWriter, r *http.Request) (*Asset, error) {
	limit := v.MaxBytes + multipartOverhead
	if r.ContentLength > limit {
		return nil, httperr.ErrFileTooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	mr, err := r.MultipartReader()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, httperr.ErrMissingFile.WithCause(err)
		}
		return nil, httperr.ErrInvalidMultipart.WithCause(err)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, httperr.ErrMissingFile
		}
		if err != nil {
			return nil, readError(err)
		}

		if part.FormName() != v.Field {
			if _, err := io.Copy(io.Discard, part); err != nil {
				return nil, readError(err)
			}
			continue
		}
		return v.readAsset(part)
	}
}

func (v *Validator) readAsset(part *multipart.Part) (*Asset, error) {
	declared := baseType(part.Header.Get("Content-Type"))
	if !contains(v.Allowed, declared) {
		return nil, httperr.ErrUnsupportedMediaType.WithCause(fmt.Errorf("declared %q", declared))
	}

	data, err := io.ReadAll(io.LimitReader(part, v.MaxBytes+1))
	if err != nil {
		return nil, readError(err)
	}
	if int64(len(data)) > v.MaxBytes {
		return nil, httperr.ErrFileTooLarge
	}
	if len(data) == 0 {
		return nil, httperr.ErrMissingFile
	}

	sniffed := Sniff(data, v.Allowed)
	if !contains(v.Allowed, sniffed) || sniffed != declared {
		return nil, httperr.ErrSignatureMismatch.WithCause(fmt.Errorf("declared %q, content is %q", declared, sniffed))
	}

	return &Asset{
		Field:        v.Field,
		Filename:     part.FileName(),
		DeclaredMIME: declared,
		SniffedMIME:  sniffed,
		Size:         int64(len(data)),
		Data:         data,
	}, nil
}

func readError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return httperr.ErrFileTooLarge.WithCause(err)
	}
	return httperr.ErrInvalidMultipart.WithCause(err)
}

// Middleware roda o Validator e anexa o Asset ao contexto.
func Middleware(v *Validator, log *zap.SugaredLogger) func(next http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			asset, err := v.Parse(w, r)
			if err != nil {
				he := httperr.From(err)
				metrics.UploadRejections.WithLabelValues(he.Code).Inc()
				log.Infow("upload rejected", "code", he.Code, "reason", err.Error(), "content_length", r.ContentLength)
				httperr.Write(w, he)
				return
			}

			metrics.UploadBytes.Observe(float64(asset.Size))
			log.Infow("upload accepted",
				"mime", asset.SniffedMIME,
				"size", asset.Size,
				"fingerprint", asset.Fingerprint(),
			)
			next.ServeHTTP(w, r.WithContext(WithAsset(r.Context(), asset)))
		})
	}
}
