package server

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"

	"queryrpc/client"
	"queryrpc/engine"
	"queryrpc/middleware"
	"queryrpc/queryservice"
	"queryrpc/transport"
	"queryrpc/wire"
)

// startServer runs a server on an ephemeral port and returns its address.
func startServer(t *testing.T, factory func() queryservice.Handler, mws ...middleware.Middleware) (*Server, string) {
	t.Helper()
	srv := NewServer(factory)
	for _, mw := range mws {
		srv.Use(mw)
	}
	go srv.Serve("tcp", "127.0.0.1:0", "", nil)

	var addr string
	for i := 0; i < 200; i++ {
		if addr = srv.Addr(); addr != "" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if addr == "" {
		t.Fatal("server did not start")
	}
	t.Cleanup(func() { srv.Shutdown(time.Second) })
	return srv, addr
}

// stubHandler is a scriptable session for error-path tests.
type stubHandler struct {
	id         int
	executeErr error
	calls      []string
}

func (h *stubHandler) Execute(query string) error {
	h.calls = append(h.calls, "execute")
	return h.executeErr
}

func (h *stubHandler) FetchOne() (string, error) {
	h.calls = append(h.calls, "fetchOne")
	return "row", nil
}

func (h *stubHandler) FetchN(numRows int32) ([]string, error) {
	h.calls = append(h.calls, "fetchN")
	return []string{}, nil
}

func (h *stubHandler) FetchAll() ([]string, error) {
	h.calls = append(h.calls, "fetchAll")
	return []string{}, nil
}

func (h *stubHandler) GetSchema() (string, error) {
	h.calls = append(h.calls, "getSchema")
	return fmt.Sprintf("session-%d", h.id), nil
}

func TestFullQueryFlow(t *testing.T) {
	eng := engine.New()
	eng.AddTable(&engine.Table{
		Name:    "people",
		Columns: []string{"name", "age"},
		Rows:    [][]string{{"alice", "30"}, {"bob", "25"}, {"carol", "41"}},
	})

	_, addr := startServer(t, func() queryservice.Handler { return eng.NewSession() })

	c, err := client.Dial(addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	if err := c.Execute("SELECT * FROM people"); err != nil {
		t.Fatalf("execute: %v", err)
	}

	schema, err := c.GetSchema()
	if err != nil {
		t.Fatalf("getSchema: %v", err)
	}
	if schema != "name\tage" {
		t.Errorf("schema = %q, want %q", schema, "name\tage")
	}

	row, err := c.FetchOne()
	if err != nil {
		t.Fatalf("fetchOne: %v", err)
	}
	if row != "alice\t30" {
		t.Errorf("row = %q, want %q", row, "alice\t30")
	}

	rows, err := c.FetchN(5)
	if err != nil {
		t.Fatalf("fetchN: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("fetchN returned %d rows, want 2", len(rows))
	}

	// Cursor is exhausted now: fetchAll yields an empty batch, fetchOne a
	// no-data error.
	rest, err := c.FetchAll()
	if err != nil {
		t.Fatalf("fetchAll: %v", err)
	}
	if rest == nil || len(rest) != 0 {
		t.Errorf("fetchAll = %v, want empty slice", rest)
	}

	_, err = c.FetchOne()
	var qerr *queryservice.QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("err = %v, want *queryservice.QueryError", err)
	}
	if qerr.SQLState != "02000" {
		t.Errorf("SQLState = %q, want 02000", qerr.SQLState)
	}
}

func TestFetchBeforeExecute(t *testing.T) {
	eng := engine.New()
	_, addr := startServer(t, func() queryservice.Handler { return eng.NewSession() })

	c, err := client.Dial(addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	_, err = c.FetchOne()
	var qerr *queryservice.QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("err = %v, want *queryservice.QueryError", err)
	}
	if qerr.SQLState != "HY010" {
		t.Errorf("SQLState = %q, want HY010", qerr.SQLState)
	}
}

func TestUnknownMethodNeverTouchesHandler(t *testing.T) {
	h := &stubHandler{}
	_, addr := startServer(t, func() queryservice.Handler { return h })

	conn, err := transport.Dial(addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var result queryservice.ExecuteResult
	err = conn.RoundTrip("frobnicate", 1, &queryservice.ExecuteArgs{Query: "x"}, &result)

	var appErr *wire.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("err = %v, want *wire.ApplicationError", err)
	}
	if appErr.Code != wire.ExceptionUnknownMethod {
		t.Errorf("Code = %d, want %d", appErr.Code, wire.ExceptionUnknownMethod)
	}
	if len(h.calls) != 0 {
		t.Errorf("handler was invoked: %v", h.calls)
	}

	// The args struct was consumed, so the connection is still usable.
	if err := conn.RoundTrip(queryservice.MethodExecute, 2, &queryservice.ExecuteArgs{Query: "x"}, &result); err != nil {
		t.Errorf("follow-up call failed: %v", err)
	}
}

func TestUndeclaredHandlerError(t *testing.T) {
	h := &stubHandler{executeErr: errors.New("disk on fire")}
	_, addr := startServer(t, func() queryservice.Handler { return h })

	c, err := client.Dial(addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	err = c.Execute("SELECT * FROM t")
	var appErr *wire.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("err = %v, want *wire.ApplicationError", err)
	}
	if appErr.Code != wire.ExceptionInternalError {
		t.Errorf("Code = %d, want %d", appErr.Code, wire.ExceptionInternalError)
	}

	// An internal error poisons the call, not the connection.
	h.executeErr = nil
	if err := c.Execute("SELECT * FROM t"); err != nil {
		t.Errorf("follow-up call failed: %v", err)
	}
}

func TestDeclaredErrorTravelsInReply(t *testing.T) {
	h := &stubHandler{executeErr: &queryservice.QueryError{
		Message: "syntax error", ErrorCode: 1, SQLState: "42000",
	}}
	_, addr := startServer(t, func() queryservice.Handler { return h })

	c, err := client.Dial(addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	err = c.Execute("BOGUS")
	var qerr *queryservice.QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("err = %v, want *queryservice.QueryError", err)
	}
	if qerr.SQLState != "42000" || qerr.Message != "syntax error" {
		t.Errorf("got %+v", qerr)
	}
}

func TestSessionPerConnection(t *testing.T) {
	var next atomic.Int32
	_, addr := startServer(t, func() queryservice.Handler {
		return &stubHandler{id: int(next.Add(1))}
	})

	c1, err := client.Dial(addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c1.Close()
	c2, err := client.Dial(addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c2.Close()

	s1, err := c1.GetSchema()
	if err != nil {
		t.Fatalf("getSchema: %v", err)
	}
	s2, err := c2.GetSchema()
	if err != nil {
		t.Fatalf("getSchema: %v", err)
	}
	if s1 == s2 {
		t.Errorf("both connections share session %q", s1)
	}
}

type slowHandler struct {
	stubHandler
	delay time.Duration
}

func (h *slowHandler) Execute(query string) error {
	time.Sleep(h.delay)
	return nil
}

func TestTimeoutDropsConnection(t *testing.T) {
	_, addr := startServer(t,
		func() queryservice.Handler { return &slowHandler{delay: time.Second} },
		middleware.Timeout(50*time.Millisecond),
	)

	c, err := client.Dial(addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	err = c.Execute("SELECT * FROM t")
	var appErr *wire.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("err = %v, want *wire.ApplicationError", err)
	}
	if appErr.Code != wire.ExceptionInternalError {
		t.Errorf("Code = %d, want %d", appErr.Code, wire.ExceptionInternalError)
	}

	// The dispatch was abandoned, so the server hangs up rather than let a
	// late write interleave with the next reply.
	if err := c.Execute("SELECT * FROM t"); err == nil {
		t.Error("expected the connection to be closed after a timeout")
	}
}

func TestShutdownCompletesInFlightCall(t *testing.T) {
	srv, addr := startServer(t, func() queryservice.Handler {
		return &slowHandler{delay: 300 * time.Millisecond}
	})

	c, err := client.Dial(addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	execErr := make(chan error, 1)
	go func() {
		execErr <- c.Execute("SELECT * FROM t")
	}()

	// Let the call reach the handler before shutting down.
	time.Sleep(100 * time.Millisecond)
	if err := srv.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	select {
	case err := <-execErr:
		if err != nil {
			t.Errorf("in-flight call failed during shutdown: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("in-flight call never completed")
	}
}

func TestGracefulShutdown(t *testing.T) {
	eng := engine.New()
	srv := NewServer(func() queryservice.Handler { return eng.NewSession() })

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve("tcp", "127.0.0.1:0", "", nil)
	}()
	for i := 0; i < 200 && srv.Addr() == ""; i++ {
		time.Sleep(5 * time.Millisecond)
	}
	if srv.Addr() == "" {
		t.Fatal("server did not start")
	}

	if err := srv.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case err := <-serveErr:
		if err != nil {
			t.Errorf("Serve returned %v after shutdown", err)
		}
	case <-time.After(time.Second):
		t.Error("Serve did not return after shutdown")
	}
}
