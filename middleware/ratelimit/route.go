package ratelimit

import (
	"net/http"
	"strings"
)

// RouteClass agrupa o path nas rotas do gateway: "scan", "admin", "api" ou
// "other". É o que vai para stats no lugar do path.
func RouteClass(r *http.Request) string {
	p := r.URL.Path
	switch {
	case p == "/api/scan":
		return "scan"
	case p == "/api/admin" || strings.HasPrefix(p, "/api/admin/"):
		return "admin"
	case p == "/api" || strings.HasPrefix(p, "/api/"):
		return "api"
	default:
		return "other"
	}
}
