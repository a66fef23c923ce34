package worker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bbagrid/bbagrid/internal/events"
)

// Metrics holds worker instruments. A nil *Metrics records nothing.
type Metrics struct {
	events  metric.Int64Counter
	expired metric.Int64Counter
}

// NewMetrics creates worker instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	evts, err := meter.Int64Counter(
		"bbagrid.worker.events",
		metric.WithDescription("Block change messages by outcome"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	expired, err := meter.Int64Counter(
		"bbagrid.worker.expired",
		metric.WithDescription("Devices removed from their block after going silent"),
		metric.WithUnit("{device}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{events: evts, expired: expired}, nil
}

func (m *Metrics) recordOutcome(ctx context.Context, e events.BlockChanged, o Outcome) {
	if m == nil {
		return
	}
	m.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", o.String()),
		attribute.String("transition", string(e.Transition())),
	))
}

func (m *Metrics) recordDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "dropped")))
}

func (m *Metrics) recordExpired(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.expired.Add(ctx, int64(n))
}
