package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"queryrpc/wire"
)

// RateLimit rejects calls beyond r per second (token bucket with the given
// burst). Rejected calls surface to the client as an internal application
// error before any handler runs.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) error {
			if !limiter.Allow() {
				return wire.NewApplicationError(wire.ExceptionInternalError, "rate limit exceeded")
			}
			return next(ctx, call)
		}
	}
}
