package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Logging logs every dispatched call with its duration and outcome.
func Logging(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) error {
			start := time.Now()
			err := next(ctx, call)
			fields := []zap.Field{
				zap.String("method", call.Method),
				zap.Int32("seq", call.Seq),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("call failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("call served", fields...)
			}
			return err
		}
	}
}
