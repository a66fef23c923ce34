package middleware

import (
	"net/http"
	"strings"

	"github.com/bbagrid/bbagrid/internal/api/models"
)

// securityHeaders are set on every response. Responses carry device
// positions, so nothing may be cached or framed.
var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "no-referrer"},
	{"Permissions-Policy", "geolocation=(), camera=(), microphone=()"},
	{"Cache-Control", "no-store"},
}

// SecurityHeaders sets the API's fixed security headers. Handlers may
// override any of them.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTLS rejects requests that did not arrive over TLS, either directly
// or via a proxy setting X-Forwarded-Proto. Ops probes are exempt since load
// balancers health-check over plain HTTP.
func RequireTLS(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isTLS(r) && !strings.HasPrefix(r.URL.Path, "/v1/ops/") {
				writeProblem(w, r, models.KindTLSRequired, "this endpoint requires HTTPS")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isTLS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
