package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/bbagrid/bbagrid/internal/api/models"
	"github.com/bbagrid/bbagrid/internal/auth"
)

// principalKey is the context key for the authenticated principal.
type principalKey struct{}

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*auth.Principal, error)
}

// Auth creates authentication middleware that validates JWT bearer tokens.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, detail := bearerToken(r)
			if detail != "" {
				writeUnauthorized(w, r, detail)
				return
			}

			principal, err := validator.ValidateAccessToken(tokenString)
			if err != nil {
				detail := "authentication failed"
				switch {
				case errors.Is(err, auth.ErrAccessTokenExpired):
					detail = "access token has expired"
				case errors.Is(err, auth.ErrInvalidAccessToken):
					detail = "invalid access token"
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="bbagrid", error="invalid_token", error_description="`+detail+`"`)
				writeProblem(w, r, models.KindUnauthorized, detail)
				return
			}

			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("subject", principal.Subject)
			})
			ctx := context.WithValue(r.Context(), principalKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token; detail is non-empty when the header is
// missing or malformed.
func bearerToken(r *http.Request) (token, detail string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "missing authorization header"
	}

	// Case-insensitive scheme.
	const bearerPrefix = "Bearer "
	if len(authHeader) < len(bearerPrefix) ||
		!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return "", "invalid authorization header format"
	}

	token = strings.TrimSpace(authHeader[len(bearerPrefix):])
	if token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}

// RequireAdmin rejects principals without the admin role. It must run
// after Auth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := GetPrincipal(r.Context())
		if p == nil {
			writeUnauthorized(w, r, "authentication required")
			return
		}
		if !p.IsAdmin() {
			writeForbidden(w, r, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireDevice only lets through admins and the device named by the
// URL parameter param. It must run after Auth.
func RequireDevice(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipal(r.Context())
			if p == nil {
				writeUnauthorized(w, r, "authentication required")
				return
			}
			if !p.CanAccessDevice(chi.URLParam(r, param)) {
				writeForbidden(w, r, "token does not grant access to this device")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeUnauthorized answers a request that carried no usable credentials.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="bbagrid"`)
	writeProblem(w, r, models.KindUnauthorized, detail)
}

func writeForbidden(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, models.KindForbidden, detail)
}

// writeProblem mirrors response.Problem, which middleware cannot import.
func writeProblem(w http.ResponseWriter, r *http.Request, kind models.Kind, detail string) {
	kind.New(GetRequestID(r.Context()), detail).At(r.URL.Path).Write(w)
}

// GetPrincipal returns the authenticated principal, or nil.
func GetPrincipal(ctx context.Context) *auth.Principal {
	if p, ok := ctx.Value(principalKey{}).(*auth.Principal); ok {
		return p
	}
	return nil
}

// GetSubject returns the authenticated subject (device ID or "admin").
// Returns an empty string if not authenticated.
func GetSubject(ctx context.Context) string {
	if p := GetPrincipal(ctx); p != nil {
		return p.Subject
	}
	return ""
}

// WithPrincipal returns ctx carrying p. Used by tests and internal callers.
func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}
