package upload

import (
	"context"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Asset é o arquivo validado, vivo só durante o request.
type Asset struct {
	Field        string
	Filename     string
	DeclaredMIME string
	SniffedMIME  string
	Size         int64
	Data         []byte
}

// Fingerprint é um hash curto do conteúdo, para correlacionar logs sem
// guardar a imagem.
func (a *Asset) Fingerprint() string {
	if a == nil {
		return ""
	}
	return fmt.Sprintf("%016x", xxh3.Hash(a.Data))
}

type ctxKey struct{}

func WithAsset(ctx context.Context, a *Asset) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func FromContext(ctx context.Context) (*Asset, bool) {
	a, ok := ctx.Value(ctxKey{}).(*Asset)
	return a, ok && a != nil
}
