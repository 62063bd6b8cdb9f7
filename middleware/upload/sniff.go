package upload

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var DefaultAllowed = []string{"image/jpeg", "image/png", "image/webp"}

// Sniff detecta o tipo pelos magic bytes. Devolve o primeiro tipo da
// hierarquia do mimetype que esteja em allowed; se nenhum estiver, devolve
// o tipo detectado mesmo assim.
func Sniff(data []byte, allowed []string) string {
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		if contains(allowed, baseType(m.String())) {
			return baseType(m.String())
		}
	}
	return baseType(detected.String())
}

// baseType tira parâmetros e normaliza ("IMAGE/JPEG; q=1" -> "image/jpeg").
func baseType(v string) string {
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		mt, _, _ = strings.Cut(v, ";")
	}
	mt = strings.ToLower(strings.TrimSpace(mt))
	if mt == "image/jpg" || mt == "image/pjpeg" {
		return "image/jpeg"
	}
	return mt
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
