package logging

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	return uuid.NewString()
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// TraceIDFromContext returns the trace ID stored by WithTraceContext
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

// WithTraceContext adds a trace ID to the context and returns a logger with it
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := FromContext(ctx).WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// FundContext derives the valuation logger of a fund from the request logger
// in ctx, so an HTTP trace ID carries through
func FundContext(ctx context.Context, fundID int64) *Logger {
	return FromContext(ctx).WithField("fund_id", fundID).WithComponent("valuation")
}

// ClosureContext derives the closure logger of a fund from the request logger in ctx
func ClosureContext(ctx context.Context, fundID int64, periodYield decimal.Decimal) *Logger {
	return FromContext(ctx).WithFields(map[string]interface{}{
		"fund_id":      fundID,
		"period_yield": periodYield.String(),
	}).WithComponent("closure")
}

// DatabaseContext creates a logger context for database operations. table is
// left out when empty.
func DatabaseContext(operation, table string) *Logger {
	fields := map[string]interface{}{"operation": operation}
	if table != "" {
		fields["table"] = table
	}
	return Default().WithFields(fields).WithComponent("database")
}

// GinMiddleware attaches a trace-scoped logger to every request and logs its completion
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			traceID = GenerateTraceID()
		}

		l := Default().WithTraceID(traceID).WithFields(map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"remote_addr": c.ClientIP(),
		}).WithComponent("http")

		ctx := context.WithValue(c.Request.Context(), traceIDKey, traceID)
		c.Request = c.Request.WithContext(NewContext(ctx, l))
		c.Header("X-Trace-ID", traceID)

		c.Next()

		l.WithDuration(time.Since(start)).WithField("status_code", c.Writer.Status()).Info("Request completed")
	}
}
