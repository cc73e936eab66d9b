package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appctx "stockledger/internal/core/context"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{zap.New(core).Sugar()}, logs
}

func TestInfo_CarriesRequestAndLedgerScope(t *testing.T) {
	l, logs := observed()

	ctx := WithLogger(context.Background(), l)
	ctx = appctx.WithTrace(ctx, &appctx.TraceContext{TraceID: "t-1", SpanID: "s-1", RequestID: "r-1"})
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: "clerk-7"})
	ctx = appctx.WithLedgerScope(ctx, appctx.LedgerScope{Operation: "reservation.commit", ReservationID: "res-1"})
	ctx = appctx.WithLedgerScope(ctx, appctx.LedgerScope{Triple: "p:v:w"})

	Info(ctx, "reservation committed", "quantity", 3)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "t-1", fields["trace_id"])
	assert.Equal(t, "r-1", fields["request_id"])
	assert.Equal(t, "clerk-7", fields["user_id"])
	assert.Equal(t, "reservation.commit", fields["operation"])
	assert.Equal(t, "res-1", fields["reservation_id"])
	assert.Equal(t, "p:v:w", fields["triple"])
	assert.EqualValues(t, 3, fields["quantity"])
}

func TestWithContext_BareContextAddsNothing(t *testing.T) {
	l, logs := observed()

	l.WithContext(context.Background()).Infow("tick")

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].Context)
}
