package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	"github.com/tigerroll/surfin-flow/pkg/batch/infrastructure/telemetry"
)

func TestNewProviders_DisabledIsNoop(t *testing.T) {
	p, err := telemetry.NewProviders(context.Background(), config.TracingConfig{Enabled: false})
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviders_EnabledRequiresEndpoint(t *testing.T) {
	_, err := telemetry.NewProviders(context.Background(), config.TracingConfig{Enabled: true})
	assert.Error(t, err)
}

func TestNewProviders_HTTPExporter(t *testing.T) {
	p, err := telemetry.NewProviders(context.Background(), config.TracingConfig{
		Enabled:     true,
		Endpoint:    "localhost:4318",
		Protocol:    "http",
		Insecure:    true,
		ServiceName: "surfin-flow-test",
	})
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "job")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	// nothing listens on the endpoint, so the flush may fail
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = p.Shutdown(ctx)
}
