package worker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/bbagrid/bbagrid/internal/events"
	"github.com/bbagrid/bbagrid/internal/grid"
)

func entered(device string, at time.Time) events.BlockChanged {
	return events.BlockChanged{
		DeviceID:   device,
		To:         &grid.BlockID{Row: 3, Col: 4},
		Lat:        35.92,
		Lon:        -106.3,
		OccurredAt: at,
	}
}

func TestConsumer_Handle(t *testing.T) {
	tally := NewTally()
	c := newConsumer(tally, nil, zerolog.Nop())

	e := entered("dev_a", time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC))
	data, err := e.Marshal()
	require.NoError(t, err)
	attrs := events.Attributes(context.Background(), e)

	outcome, err := c.handle(context.Background(), "m1", attrs, data)
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	outcome, err = c.handle(context.Background(), "m1", attrs, data)
	require.NoError(t, err)
	assert.Equal(t, Duplicate, outcome, "redelivery")

	got, ok := tally.DeviceBlock("dev_a")
	require.True(t, ok)
	assert.Equal(t, "34", got.String())
}

func TestConsumer_DropsUnusable(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]string
		data  []byte
	}{
		{name: "other type", attrs: map[string]string{"type": "something_else"}, data: []byte(`{"deviceId":"dev_a"}`)},
		{name: "bad json", data: []byte(`{not json`)},
		{name: "missing device", data: []byte(`{"to":{"row":1,"col":1}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tally := NewTally()
			c := newConsumer(tally, nil, zerolog.Nop())

			_, err := c.handle(context.Background(), "m1", tt.attrs, tt.data)
			assert.Error(t, err)
			assert.Equal(t, int64(0), tally.Snapshot().Events)
		})
	}
}

func TestConsumer_ContinuesPublisherTrace(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, parent := tp.Tracer("test").Start(context.Background(), "POST /v1/devices/{deviceId}/fixes")
	e := entered("dev_a", time.Now())
	data, err := e.Marshal()
	require.NoError(t, err)
	attrs := events.Attributes(ctx, e)
	parent.End()

	c := newConsumer(NewTally(), nil, zerolog.Nop())
	_, err = c.handle(context.Background(), "m1", attrs, data)
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	consumerSpan := spans[1]
	assert.Equal(t, "block_changed process", consumerSpan.Name)
	assert.Equal(t, trace.SpanKindConsumer, consumerSpan.SpanKind)
	assert.Equal(t, parent.SpanContext().TraceID(), consumerSpan.SpanContext.TraceID())
	assert.Equal(t, parent.SpanContext().SpanID(), consumerSpan.Parent.SpanID())
}

func TestConsumer_CountsOutcomes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	metrics, err := NewMetrics()
	require.NoError(t, err)
	c := newConsumer(NewTally(), metrics, zerolog.Nop())

	e := entered("dev_a", time.Now())
	data, err := e.Marshal()
	require.NoError(t, err)

	_, _ = c.handle(context.Background(), "m1", nil, data)
	_, _ = c.handle(context.Background(), "m1", nil, data)
	_, _ = c.handle(context.Background(), "m2", nil, []byte(`nope`))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "bbagrid.worker.events" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				v, _ := dp.Attributes.Value("outcome")
				counts[v.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"applied": 1, "duplicate": 1, "dropped": 1}, counts)
}
