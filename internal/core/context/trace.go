package context

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext correlates log lines of one request or one worker tick.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
}

type traceContextKey struct{}

func WithTrace(ctx context.Context, tc *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// GetRequestID returns request ID from context or empty string.
func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

// NewTraceContext builds ids for work that did not arrive over HTTP. The ids of
// an active span in ctx are reused so logs match exported traces.
func NewTraceContext(ctx context.Context) *TraceContext {
	tc := &TraceContext{RequestID: newID()}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		tc.TraceID = sc.TraceID().String()
		tc.SpanID = sc.SpanID().String()
		return tc
	}
	tc.TraceID = newID()
	tc.SpanID = strings.ReplaceAll(newID(), "-", "")[16:]
	return tc
}

func newID() string {
	if v, err := uuid.NewV7(); err == nil {
		return v.String()
	}
	return uuid.New().String()
}
