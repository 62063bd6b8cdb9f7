// Package httperr define o erro tipado do gateway (tipo + status HTTP + código)
// e a única fronteira de tradução para resposta JSON.
//
// Todo estágio da cadeia de middlewares devolve ou escreve um *Error; nada
// passa da cadeia sem virar JSON no formato {"error": ..., "code": ...}.
package httperr

import (
	"errors"
	"net/http"
	"time"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindRateLimit
	KindSecurity
	KindUpstream
	KindOverload
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRateLimit:
		return "rate_limit"
	case KindSecurity:
		return "security"
	case KindUpstream:
		return "upstream"
	case KindOverload:
		return "overload"
	default:
		return "internal"
	}
}

// Error é a variante de erro que atravessa os middlewares.
type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	// RetryAfter vira o header Retry-After quando > 0.
	RetryAfter time.Duration
	// Err é a causa original (não exposta ao cliente).
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is compara por código, então errors.Is(err, ErrFileTooLarge) funciona
// mesmo para cópias com causa anexada.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause devolve uma cópia com a causa anexada.
func (e *Error) WithCause(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// WithMessage devolve uma cópia com outra mensagem.
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

var (
	ErrMissingFile = &Error{
		Kind:    KindValidation,
		Status:  http.StatusBadRequest,
		Code:    "MISSING_FILE",
		Message: "multipart field with the image is required",
	}
	ErrInvalidMultipart = &Error{
		Kind:    KindValidation,
		Status:  http.StatusBadRequest,
		Code:    "INVALID_MULTIPART",
		Message: "malformed multipart body",
	}
	ErrInvalidJSON = &Error{
		Kind:    KindValidation,
		Status:  http.StatusBadRequest,
		Code:    "INVALID_JSON",
		Message: "request body is not valid JSON",
	}
	ErrFileTooLarge = &Error{
		Kind:    KindValidation,
		Status:  http.StatusRequestEntityTooLarge,
		Code:    "FILE_TOO_LARGE",
		Message: "uploaded file exceeds the size limit",
	}
	ErrPayloadTooLarge = &Error{
		Kind:    KindValidation,
		Status:  http.StatusRequestEntityTooLarge,
		Code:    "PAYLOAD_TOO_LARGE",
		Message: "request body too large",
	}
	ErrUnsupportedMediaType = &Error{
		Kind:    KindValidation,
		Status:  http.StatusUnsupportedMediaType,
		Code:    "UNSUPPORTED_MEDIA_TYPE",
		Message: "only JPEG, PNG and WebP images are allowed",
	}
	ErrSignatureMismatch = &Error{
		Kind:    KindValidation,
		Status:  http.StatusUnsupportedMediaType,
		Code:    "SIGNATURE_MISMATCH",
		Message: "file content does not match its declared type",
	}
	ErrBlockedUserAgent = &Error{
		Kind:    KindSecurity,
		Status:  http.StatusForbidden,
		Code:    "BLOCKED_USER_AGENT",
		Message: "automated clients are not allowed",
	}
	ErrUpstreamUnavailable = &Error{
		Kind:    KindUpstream,
		Status:  http.StatusBadGateway,
		Code:    "UPSTREAM_UNAVAILABLE",
		Message: "backend is unreachable",
	}
	ErrUpstreamTimeout = &Error{
		Kind:    KindUpstream,
		Status:  http.StatusBadGateway,
		Code:    "UPSTREAM_TIMEOUT",
		Message: "backend did not respond in time",
	}
	ErrServerBusy = &Error{
		Kind:    KindOverload,
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVER_BUSY",
		Message: "too many requests in flight",
	}
	ErrNotFound = &Error{
		Kind:    KindValidation,
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: "route not found",
	}
	ErrMethodNotAllowed = &Error{
		Kind:    KindValidation,
		Status:  http.StatusMethodNotAllowed,
		Code:    "METHOD_NOT_ALLOWED",
		Message: "method not allowed",
	}
	ErrInternal = &Error{
		Kind:    KindInternal,
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: "internal gateway error",
	}
)

// RateLimited cria um erro 429 com dica de retry.
func RateLimited(code, msg string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimit,
		Status:     http.StatusTooManyRequests,
		Code:       code,
		Message:    msg,
		RetryAfter: retryAfter,
	}
}

// Internal embrulha um erro inesperado como 500.
func Internal(err error) *Error {
	return ErrInternal.WithCause(err)
}

// From converte qualquer erro para *Error; erros desconhecidos viram 500.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var he *Error
	if errors.As(err, &he) {
		return he
	}
	return Internal(err)
}
