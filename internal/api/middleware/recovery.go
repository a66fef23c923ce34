package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/bbagrid/bbagrid/internal/api/models"
)

// Recovery turns a handler panic into a 500 problem. It prefers the
// request-scoped logger installed by Logger. http.ErrAbortHandler is
// re-panicked so the server aborts the response as usual.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := newResponseWriter(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				requestID := GetRequestID(r.Context())
				l := zerolog.Ctx(r.Context())
				if l.GetLevel() == zerolog.Disabled {
					fallback := log.With().Str("request_id", requestID).Logger()
					l = &fallback
				}
				l.Error().
					Str("route", routePattern(r)).
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				// Headers already went out; the client sees a truncated body.
				if wrapped.wroteHeader {
					return
				}
				models.KindInternal.New(requestID, "an unexpected error occurred").At(r.URL.Path).Write(wrapped)
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}
