package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/hershield/hershield/internal/telemetry"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Sum[int64] {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := make(map[string]metricdata.Sum[int64])
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				sums[m.Name] = sum
			}
		}
	}
	return sums
}

func valueFor(sum metricdata.Sum[int64], key, value string) int64 {
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return 0
}

func TestSafetyMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := telemetry.NewSafetyMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordPlan(ctx, "oracle")
	metrics.RecordPlan(ctx, "oracle")
	metrics.RecordPlan(ctx, "fallback")
	metrics.RecordAlert(ctx, "SOS")
	metrics.RecordDeliveryFailure(ctx, "alert-webhook")
	metrics.RecordDeviation(ctx)
	metrics.RecordDeviation(ctx)

	sums := collectSums(t, reader)

	assert.Equal(t, int64(2), valueFor(sums["hershield.planning.total"], "source", "oracle"))
	assert.Equal(t, int64(1), valueFor(sums["hershield.planning.total"], "source", "fallback"))
	assert.Equal(t, int64(1), valueFor(sums["hershield.alerts.dispatched"], "kind", "SOS"))
	assert.Equal(t, int64(1), valueFor(sums["hershield.alerts.delivery_failures"], "notifier", "alert-webhook"))

	deviations := sums["hershield.monitoring.deviations"]
	require.Len(t, deviations.DataPoints, 1)
	assert.Equal(t, int64(2), deviations.DataPoints[0].Value)
}
