package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey contextKey = "github.com/herbie65/alloygator-nl-sub001/internal/platform/requestctx/logger"
	orderContextKey  contextKey = "github.com/herbie65/alloygator-nl-sub001/internal/platform/requestctx/order"
)

var noopLogger = zap.NewNop()

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// WithOrder records the order ID on the context and enriches the contextual
// logger so every downstream log line carries it.
func WithOrder(ctx context.Context, orderID string) context.Context {
	if orderID == "" {
		return ctx
	}
	ctx = context.WithValue(ctx, orderContextKey, orderID)
	return WithLogger(ctx, Logger(ctx).With(zap.String("orderId", orderID)))
}

// OrderID returns the order ID previously recorded with WithOrder, if any.
func OrderID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(orderContextKey).(string); ok {
		return id
	}
	return ""
}

// NoopLogger exposes the shared noop logger instance used across the package.
func NoopLogger() *zap.Logger { return noopLogger }
