package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitTelemetryDisabled(t *testing.T) {
	shutdown, err := InitTelemetry(context.Background(), Config{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitTelemetryRequiresServiceName(t *testing.T) {
	_, err := InitTelemetry(context.Background(), Config{Enabled: true})
	require.Error(t, err)
}

func TestGetMetricsIsSingleton(t *testing.T) {
	m := GetMetrics()
	require.NotNil(t, m)
	require.Same(t, m, GetMetrics())
	require.NotNil(t, m.TransferTransitionsTotal)
	require.NotNil(t, m.EventsDroppedTotal)

	// Instruments are usable before any provider is installed.
	m.TxConflictsTotal.Add(context.Background(), 1)
}
