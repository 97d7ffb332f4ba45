package telemetry

import (
	"context"
	"testing"

	"github.com/arcworks/arc/internal/config"
	"github.com/stretchr/testify/require"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{ServiceName: "arcd"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupWithEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		Endpoint:    "http://127.0.0.1:4318/v1/traces",
		ServiceName: "arcd-test",
	})
	require.NoError(t, err)
	// Nothing was recorded, so shutdown has nothing to export.
	require.NoError(t, shutdown(context.Background()))
}
