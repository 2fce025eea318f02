package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/jsamuelsen11/s3-gateway/internal/platform/config"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/telemetry"
)

func TestSetup_Disabled(t *testing.T) {
	t.Parallel()

	p, err := telemetry.Setup(context.Background(), config.TelemetryConfig{Enabled: false, Exporter: "otlp"})
	require.NoError(t, err)
	assert.Nil(t, p.Tracer)
	assert.Nil(t, p.Meter)
	assert.Nil(t, p.Metrics)
	assert.NoError(t, p.Shutdown(context.Background()))
}

// Setup installs global providers, so these cases run serially.
func TestSetup_Exporters(t *testing.T) {
	tests := []struct {
		name     string
		exporter string
		endpoint string
	}{
		{name: "stdout", exporter: telemetry.ExporterStdout},
		{name: "otlp over http", exporter: telemetry.ExporterOTLP, endpoint: "http://localhost:4318"},
		{name: "otlp over https", exporter: telemetry.ExporterOTLP, endpoint: "https://collector.example.com:4318"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			p, err := telemetry.Setup(ctx, config.TelemetryConfig{
				Enabled:     true,
				Exporter:    tt.exporter,
				Endpoint:    tt.endpoint,
				ServiceName: "s3-gateway-test",
			})
			require.NoError(t, err)
			// OTLP flushes fail without a collector; only stdout must shut down cleanly.
			t.Cleanup(func() {
				err := p.Shutdown(ctx)
				if tt.exporter == telemetry.ExporterStdout {
					assert.NoError(t, err)
				}
			})

			require.NotNil(t, p.Tracer)
			require.NotNil(t, p.Meter)
			require.NotNil(t, p.Metrics)
			assert.NotEmpty(t, otel.GetTextMapPropagator().Fields())
		})
	}
}

func TestSetup_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  config.TelemetryConfig
	}{
		{name: "unknown exporter", cfg: config.TelemetryConfig{Enabled: true, Exporter: "zipkin"}},
		{name: "otlp without endpoint", cfg: config.TelemetryConfig{Enabled: true, Exporter: telemetry.ExporterOTLP}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := telemetry.Setup(context.Background(), tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	m, err := telemetry.NewMetrics(noop.NewMeterProvider(), "s3-gateway-test")
	require.NoError(t, err)
	assert.NotNil(t, m.ServerRequestDuration)
	assert.NotNil(t, m.ServerRequestTotal)
	assert.NotNil(t, m.ClientRequestDuration)
	assert.NotNil(t, m.ClientRequestTotal)
}
