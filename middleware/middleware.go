// Package middleware provides the server-side interceptor chain.
//
// A middleware wraps the dispatch of one decoded call. The chain is built
// once per connection using the onion model:
//
//	Chain(A, B, C)(dispatch) → A(B(C(dispatch)))
//
// A middleware that rejects a call returns a *wire.ApplicationError; the
// server reports it to the client on an Exception envelope without invoking
// the handler.
package middleware

import "context"

// Call describes one decoded request envelope as seen by the chain.
type Call struct {
	Method string
	Seq    int32

	// Abandoned is set by the timeout middleware when it gives up on a
	// still-running dispatch. The server must drop the connection after
	// replying: the abandoned goroutine may still write to the stream.
	Abandoned bool
}

// HandlerFunc dispatches one call (decode args, invoke handler, write reply).
type HandlerFunc func(ctx context.Context, call *Call) error

// Middleware wraps a HandlerFunc with additional behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one. The first middleware is outermost:
// its before-logic runs first and its after-logic runs last.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
