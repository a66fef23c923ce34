package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/bbagrid/bbagrid/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	p, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:  "bbagrid-test",
		OTLPEndpoint: "localhost:4317",
		SampleRatio:  0.25,
	})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.TracerProvider)
	assert.Nil(t, p.MeterProvider)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProvider_ShutdownSDK(t *testing.T) {
	p := &telemetry.Provider{TracerProvider: sdktrace.NewTracerProvider()}
	assert.True(t, p.Enabled())

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestConfig_Sampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{-0.5, "AlwaysOnSampler"},
		{0.25, "ParentBased{root:TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		desc := telemetry.Config{SampleRatio: tt.ratio}.Sampler().Description()
		assert.Contains(t, desc, tt.want, "ratio %v", tt.ratio)
	}
}
