// Package telemetry provides OpenTelemetry metrics and tracing for the ledger.
package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/metrics"
)

// ErrMeterNil is returned when a recorder is built without a meter.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// Recorder counts ledger operations and their latency by outcome.
//
// Metrics:
//   - ledger_operations_total{operation, outcome}
//   - ledger_operation_duration_seconds{operation, outcome}
type Recorder struct {
	total    metric.Int64Counter
	duration metric.Float64Histogram
}

var _ metrics.Recorder = (*Recorder)(nil)

// NewRecorder creates a Recorder on meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	total, err := meter.Int64Counter(
		"ledger_operations_total",
		metric.WithDescription("Ledger operations by outcome"),
		metric.WithUnit("{operations}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"ledger_operation_duration_seconds",
		metric.WithDescription("Ledger operation latency including lock wait and retries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, err
	}

	return &Recorder{total: total, duration: duration}, nil
}

// Observe implements metrics.Recorder.
func (r *Recorder) Observe(ctx context.Context, op string, err error, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", Outcome(err)),
	)
	r.total.Add(ctx, 1, attrs)
	r.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// Outcome classifies err into a low-cardinality label: "ok", the AppError
// code in lower case, or "error".
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if appErr, ok := apperror.AsAppError(err); ok {
		if label, known := outcomeLabels[appErr.Code]; known {
			return label
		}
	}
	return "error"
}

var outcomeLabels = map[string]string{
	apperror.CodeInternal:           "internal_error",
	apperror.CodeDatabase:           "database_error",
	apperror.CodeLockTimeout:        "lock_timeout",
	apperror.CodeInvariantViolation: "invariant_violation",
	apperror.CodeValidation:         "validation_error",
	apperror.CodeInvalidArgument:    "invalid_argument",
	apperror.CodeInsufficientStock:  "insufficient_stock",
	apperror.CodeInvalidState:       "invalid_state",
	apperror.CodeInconsistentLedger: "inconsistent_ledger",
	apperror.CodeUnauthorized:       "unauthorized",
	apperror.CodeNotFound:           "not_found",
	apperror.CodeIdempotency:        "idempotency_conflict",
}
