package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/bbagrid/bbagrid/internal/api/middleware"

// Span attributes specific to bbagrid.
const (
	attrRequestID = attribute.Key("bbagrid.request_id")
	attrDeviceID  = attribute.Key("bbagrid.device_id")
)

// Tracing starts a server span per request, continuing any trace context
// the client propagated. Spans are named "METHOD /route/{pattern}" once chi
// has routed the request, or just the method when no route matched.
func Tracing() func(http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			ctx, span := tracer.Start(ctx, r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
					semconv.URLScheme(scheme(r)),
					semconv.ServerAddress(r.Host),
					semconv.ClientAddress(r.RemoteAddr),
					semconv.UserAgentOriginal(r.UserAgent()),
				),
			)
			defer span.End()

			if r.URL.RawQuery != "" {
				span.SetAttributes(semconv.URLQuery(r.URL.RawQuery))
			}
			if id := GetRequestID(ctx); id != "" {
				span.SetAttributes(attrRequestID.String(id))
			}

			wrapped := newResponseWriter(w)
			routed := r.WithContext(ctx)
			next.ServeHTTP(wrapped, routed)

			if rctx := chi.RouteContext(routed.Context()); rctx != nil {
				if route := rctx.RoutePattern(); route != "" {
					span.SetName(r.Method + " " + route)
					span.SetAttributes(semconv.HTTPRoute(route))
				}
				if dev := rctx.URLParam("deviceId"); dev != "" {
					span.SetAttributes(attrDeviceID.String(dev))
				}
			}

			span.SetAttributes(
				semconv.HTTPResponseStatusCode(wrapped.statusCode),
				semconv.HTTPResponseBodySize(int(wrapped.written)),
			)
			// Client errors are the caller's problem; only 5xx marks the span.
			if wrapped.statusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(wrapped.statusCode))
			}
		})
	}
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if s := r.Header.Get("X-Forwarded-Proto"); s != "" {
		return s
	}
	return "http"
}
