package middleware

import (
	"context"
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// Metrics counts dispatched calls and failures per method. Counters are
// exported in Prometheus text format via metrics.WritePrometheus (the serve
// command wires that to an HTTP endpoint).
func Metrics() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) error {
			metrics.GetOrCreateCounter(
				fmt.Sprintf(`queryrpc_requests_total{method=%q}`, call.Method)).Inc()
			err := next(ctx, call)
			if err != nil {
				metrics.GetOrCreateCounter(
					fmt.Sprintf(`queryrpc_request_errors_total{method=%q}`, call.Method)).Inc()
			}
			return err
		}
	}
}
