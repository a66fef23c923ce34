package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const meterName = "github.com/bbagrid/bbagrid/internal/api/middleware"

// unmatchedRoute labels requests no chi route matched, such as 404s for
// arbitrary paths, so they share one series.
const unmatchedRoute = "unmatched"

// Metrics records HTTP server instruments following the OpenTelemetry
// HTTP semantic conventions.
type Metrics struct {
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter
	bodySize metric.Int64Histogram
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.duration, err = meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Duration of HTTP server requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	); err != nil {
		return nil, err
	}
	if m.active, err = meter.Int64UpDownCounter("http.server.active_requests",
		metric.WithDescription("Number of in-flight HTTP server requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.bodySize, err = meter.Int64Histogram("http.server.response.body.size",
		metric.WithDescription("Size of HTTP server response bodies"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// Middleware records duration, in-flight count and response size per
// request, labelled by method, chi route pattern and status code.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			inFlight := metric.WithAttributes(semconv.HTTPRequestMethodKey.String(r.Method))
			m.active.Add(ctx, 1, inFlight)
			defer m.active.Add(ctx, -1, inFlight)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			route := chiRoute(r)
			if route == "" {
				route = unmatchedRoute
			}
			attrs := metric.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.HTTPRoute(route),
				semconv.HTTPResponseStatusCode(wrapped.statusCode),
			)
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			m.bodySize.Record(ctx, wrapped.written, attrs)
		})
	}
}

// chiRoute returns the matched chi route pattern, or "" when the request
// was not routed by chi. Only meaningful after routing.
func chiRoute(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// routePattern is chiRoute falling back to the raw path, for logs.
func routePattern(r *http.Request) string {
	if p := chiRoute(r); p != "" {
		return p
	}
	return r.URL.Path
}
