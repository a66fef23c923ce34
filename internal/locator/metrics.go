package locator

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/bbagrid/bbagrid/internal/locator"

// Metrics holds locator instruments.
type Metrics struct {
	lookups      metric.Int64Counter
	blockChanges metric.Int64Counter
	pollInterval metric.Float64Histogram
}

// NewMetrics creates locator instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	lookups, err := meter.Int64Counter(
		"bbagrid.locator.lookups",
		metric.WithDescription("Grid lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	blockChanges, err := meter.Int64Counter(
		"bbagrid.locator.block_changes",
		metric.WithDescription("Device block transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	pollInterval, err := meter.Float64Histogram(
		"bbagrid.locator.poll_interval",
		metric.WithDescription("Recommended poll interval"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		lookups:      lookups,
		blockChanges: blockChanges,
		pollInterval: pollInterval,
	}, nil
}

func (m *Metrics) recordLookup(ctx context.Context, r *Report) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.Bool("in_grid", r.InGrid),
		attribute.String("mode", string(r.Mode)),
	)
	m.lookups.Add(ctx, 1, attrs)
	m.pollInterval.Record(ctx, r.Advice.Interval.Seconds(), attrs)
}

func (m *Metrics) recordChange(ctx context.Context, transition string) {
	if m == nil {
		return
	}
	m.blockChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("transition", transition)))
}
