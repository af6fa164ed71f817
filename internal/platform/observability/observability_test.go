package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"rainshop/internal/config"
)

func TestSetupWithoutEndpointKeepsNoopProviders(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{}

	logShutdown, err := SetupLoggingSDK(ctx, cfg)
	require.NoError(t, err)

	tp, traceShutdown, err := SetupTracingSDK(ctx, cfg)
	require.NoError(t, err)
	assert.NotNil(t, tp)

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")

	assert.NoError(t, ShutdownAll(ctx, traceShutdown, logShutdown, nil))
}

func TestNewLogger(t *testing.T) {
	var logger Logger = NewLogger()
	logger.Info("hello")
	assert.NotNil(t, logger.With())
}
