package middleware

import (
	"context"
	"time"

	"queryrpc/wire"
)

// Timeout bounds the time a single dispatch may take. When it fires, the
// client receives an internal application error and the call is marked
// Abandoned: the dispatch goroutine cannot be stopped, so the server drops
// the connection after replying rather than risk an interleaved late write.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- next(ctx, call)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				call.Abandoned = true
				return wire.NewApplicationError(wire.ExceptionInternalError, "request timed out")
			}
		}
	}
}
