package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	appctx "stockledger/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// Gin context keys set by the middleware chain.
const (
	KeyRequestID = "request_id"
	KeyTraceID   = "trace_id"
	KeyUserID    = "user_id"
)

// Trace middleware adds request tracing context.
// An active OpenTelemetry span wins over the X-Trace-ID header so log lines
// and exported spans share one trace id.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		tc := appctx.NewTraceContext(ctx)
		if rid := c.GetHeader(HeaderRequestID); rid != "" {
			tc.RequestID = rid
		}
		if tid := c.GetHeader(HeaderTraceID); tid != "" && !trace.SpanContextFromContext(ctx).IsValid() {
			tc.TraceID = tid
		}
		c.Request = c.Request.WithContext(appctx.WithTrace(ctx, tc))

		c.Set(KeyTraceID, tc.TraceID)
		c.Set(KeyRequestID, tc.RequestID)

		c.Header(HeaderRequestID, tc.RequestID)
		c.Header(HeaderTraceID, tc.TraceID)

		c.Next()
	}
}
