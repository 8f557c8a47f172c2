package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"

	"github.com/agentos/studio/config"
	"github.com/agentos/studio/workflow"
)

// saveAndRestoreGlobalProviders snapshots the global OTel providers and
// restores them on cleanup so tests don't leak state.
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.tp)
	assert.Nil(t, p.mp)
	assert.Equal(t, otel.GetTracerProvider(), p.TracerProvider())
	assert.Equal(t, otel.GetMeterProvider(), p.MeterProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(context.Background(), config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentos-test",
		SampleRate:   0.5,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})

	assert.True(t, p.Enabled())
	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK, "global TracerProvider should be *sdktrace.TracerProvider")
	assert.True(t, mpIsSDK, "global MeterProvider should be *sdkmetric.MeterProvider")
	assert.Same(t, p.tp, p.TracerProvider())
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.False(t, p.Enabled())
	assert.NotNil(t, p.TracerProvider())
}

// The executor accepts the providers and records spans through them
func TestProviders_WiredIntoExecutor(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	tp := sdktrace.NewTracerProvider()
	mp := sdkmetric.NewMeterProvider()
	p := &Providers{tp: tp, mp: mp}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	exec := workflow.NewExecutor(workflow.WithTelemetry(p.TracerProvider(), p.MeterProvider()))
	g := workflow.NewGraph("otel", "")
	_, err := g.AddNode(workflow.KindAgent, nil, workflow.Position{})
	require.NoError(t, err)

	rec, err := exec.Execute(context.Background(), g, "hi")
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionStatusCompleted, rec.Status)
}

func TestBuildVersion(t *testing.T) {
	assert.Equal(t, "dev", buildVersion())
}
