package telemetry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"stockledger/internal/core/apperror"
)

func newTestRecorder(t *testing.T) (*Recorder, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	rec, err := NewRecorder(provider.Meter("test"))
	require.NoError(t, err)
	return rec, reader
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestNewRecorder_NilMeter(t *testing.T) {
	rec, err := NewRecorder(nil)
	assert.ErrorIs(t, err, ErrMeterNil)
	assert.Nil(t, rec)
}

func TestRecorder_CountsByOperationAndOutcome(t *testing.T) {
	rec, reader := newTestRecorder(t)
	ctx := context.Background()

	rec.Observe(ctx, "reserve", nil, 3*time.Millisecond)
	rec.Observe(ctx, "reserve", nil, 4*time.Millisecond)
	rec.Observe(ctx, "reserve", apperror.NewInsufficientStock("k", 5, 1), time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	m, ok := findMetric(rm, "ledger_operations_total")
	require.True(t, ok)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
		counts[outcome.AsString()] = dp.Value
	}
	assert.Equal(t, int64(2), counts["ok"])
	assert.Equal(t, int64(1), counts["insufficient_stock"])

	_, ok = findMetric(rm, "ledger_operation_duration_seconds")
	assert.True(t, ok)
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{apperror.NewLockTimeout("k"), "lock_timeout"},
		{fmt.Errorf("wrapped: %w", apperror.NewInvalidState("reservation", 1, "held", "commit")), "invalid_state"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Outcome(tt.err))
	}
}
