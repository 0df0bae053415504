package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/medicore-backend/internal/platform/ctxutil"
)

const (
	headerTraceID       = "X-Trace-Id"
	headerRequestID     = "X-Request-Id"
	headerCorrelationID = "X-Correlation-Id"

	ctxKeyTraceID   = "trace_id"
	ctxKeyRequestID = "request_id"
)

// AttachTraceContext stamps every request with a request id and a trace id.
// The trace id prefers an active OpenTelemetry span so log lines and job
// payloads line up with exported traces.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := firstHeader(c, headerRequestID, headerCorrelationID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		traceID := spanTraceID(c)
		if traceID == "" {
			traceID = firstHeader(c, headerTraceID)
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: reqID,
		}))
		c.Set(ctxKeyTraceID, traceID)
		c.Set(ctxKeyRequestID, reqID)

		h := c.Writer.Header()
		h.Set(headerTraceID, traceID)
		h.Set(headerRequestID, reqID)
		c.Next()
	}
}

func spanTraceID(c *gin.Context) string {
	sc := trace.SpanContextFromContext(c.Request.Context())
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func firstHeader(c *gin.Context, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(c.GetHeader(n)); v != "" {
			return v
		}
	}
	return ""
}
