package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestWithLedgerScope_LayersFields(t *testing.T) {
	ctx := WithLedgerScope(context.Background(), LedgerScope{Operation: "inventory.transfer", Triple: "a"})
	ctx = WithLedgerScope(ctx, LedgerScope{Triple: "b", ReservationID: "r"})

	got := GetLedgerScope(ctx)
	assert.Equal(t, LedgerScope{Operation: "inventory.transfer", Triple: "b", ReservationID: "r"}, got)
	assert.Equal(t, []any{"operation", "inventory.transfer", "triple", "b", "reservation_id", "r"}, got.Fields())

	assert.Empty(t, GetLedgerScope(context.Background()).Fields())
}

func TestNewTraceContext_ReusesActiveSpan(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:  trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	tc := NewTraceContext(ctx)
	assert.Equal(t, sc.TraceID().String(), tc.TraceID)
	assert.Equal(t, sc.SpanID().String(), tc.SpanID)
	assert.NotEmpty(t, tc.RequestID)
}

func TestNewTraceContext_GeneratesIDs(t *testing.T) {
	a := NewTraceContext(context.Background())
	b := NewTraceContext(context.Background())

	assert.NotEqual(t, a.TraceID, b.TraceID)
	assert.Len(t, a.SpanID, 16)
	assert.Equal(t, "system", Actor(context.Background()))
}
