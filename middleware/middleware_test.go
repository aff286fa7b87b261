package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"queryrpc/wire"
)

// tag appends a marker before and after the wrapped handler runs.
func tag(order *[]string, name string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) error {
			*order = append(*order, name+"-in")
			err := next(ctx, call)
			*order = append(*order, name+"-out")
			return err
		}
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	h := Chain(tag(&order, "a"), tag(&order, "b"))(func(ctx context.Context, call *Call) error {
		order = append(order, "handler")
		return nil
	})

	if err := h(context.Background(), &Call{Method: "execute"}); err != nil {
		t.Fatalf("handler: %v", err)
	}

	want := []string{"a-in", "b-in", "handler", "b-out", "a-out"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestChainEmpty(t *testing.T) {
	ran := false
	h := Chain()(func(ctx context.Context, call *Call) error {
		ran = true
		return nil
	})
	if err := h(context.Background(), &Call{}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !ran {
		t.Error("empty chain did not invoke the handler")
	}
}

func TestRateLimitRejects(t *testing.T) {
	h := RateLimit(1, 1)(func(ctx context.Context, call *Call) error {
		return nil
	})

	if err := h(context.Background(), &Call{}); err != nil {
		t.Fatalf("first call rejected: %v", err)
	}

	err := h(context.Background(), &Call{})
	var appErr *wire.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("err = %v, want *wire.ApplicationError", err)
	}
	if appErr.Code != wire.ExceptionInternalError {
		t.Errorf("Code = %d, want %d", appErr.Code, wire.ExceptionInternalError)
	}
}

func TestTimeoutAbandonsSlowCall(t *testing.T) {
	h := Timeout(20 * time.Millisecond)(func(ctx context.Context, call *Call) error {
		time.Sleep(500 * time.Millisecond)
		return nil
	})

	call := &Call{Method: "execute"}
	err := h(context.Background(), call)

	var appErr *wire.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("err = %v, want *wire.ApplicationError", err)
	}
	if !call.Abandoned {
		t.Error("timed-out call not marked abandoned")
	}
}

func TestTimeoutPassesFastCall(t *testing.T) {
	h := Timeout(time.Second)(func(ctx context.Context, call *Call) error {
		return nil
	})

	call := &Call{Method: "execute"}
	if err := h(context.Background(), call); err != nil {
		t.Fatalf("fast call failed: %v", err)
	}
	if call.Abandoned {
		t.Error("fast call marked abandoned")
	}
}

// Logging must pass errors through untouched; clients depend on the error
// type for their exception mapping.
func TestLoggingTransparent(t *testing.T) {
	want := wire.NewApplicationError(wire.ExceptionInternalError, "boom")
	h := Logging(zap.NewNop())(func(ctx context.Context, call *Call) error {
		return want
	})

	err := h(context.Background(), &Call{Method: "execute"})
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestMetricsTransparent(t *testing.T) {
	h := Metrics()(func(ctx context.Context, call *Call) error {
		return nil
	})
	if err := h(context.Background(), &Call{Method: "fetchAll"}); err != nil {
		t.Fatalf("handler: %v", err)
	}
}
