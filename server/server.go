// Package server implements the query-service server: accept loop, per-
// connection handler sessions, a fixed dispatch table, a middleware chain,
// service registration, and graceful shutdown.
//
// Request pipeline, per connection:
//
//	Accept → handleConn (sequential read loop, one request in flight)
//	  → read envelope → look up operation → decode args
//	  → middleware chain → handler → encode result → write reply
//
// Requests on one connection are handled strictly sequentially because the
// handler's fetch cursor is connection state; parallelism comes from serving
// many connections, not from pipelining one.
package server

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"queryrpc/middleware"
	"queryrpc/queryservice"
	"queryrpc/registry"
	"queryrpc/wire"
)

// registerTTL is the lease TTL for registry entries; keepalive renews it
// until shutdown.
const registerTTL = 10

// Server accepts query-service connections and dispatches their calls to
// per-connection handler sessions.
type Server struct {
	factory       func() queryservice.Handler
	lnMu          sync.Mutex
	listener      net.Listener
	wg            sync.WaitGroup // In-flight requests, for graceful shutdown
	shutdown      atomic.Bool    // Distinguishes intentional listener close from real errors
	middlewares   []middleware.Middleware
	chain         middleware.Middleware
	registry      registry.Registry
	advertiseAddr string
	logger        *zap.Logger
}

// Option configures a Server at construction.
type Option func(*Server)

// WithLogger attaches a logger; the default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a server. The factory is called once per accepted
// connection to create that connection's handler session.
func NewServer(factory func() queryservice.Handler, opts ...Option) *Server {
	s := &Server{
		factory: factory,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Use appends a middleware. Middlewares run in registration order, outermost
// first. Must be called before Serve.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Serve listens on the given address and enters the accept loop. If reg is
// non-nil the advertise address is registered under the query-service name;
// advertiseAddr must then be a routable address, not a bare ":port".
//
// Serve blocks until Shutdown or a listener error.
func (s *Server) Serve(network, address, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	s.lnMu.Lock()
	s.listener = listener
	s.lnMu.Unlock()

	// Compose the middleware chain once; it is applied to each decoded call.
	s.chain = middleware.Chain(s.middlewares...)

	s.advertiseAddr = advertiseAddr
	if reg != nil {
		s.registry = reg
		if err := reg.Register(queryservice.ServiceName, registry.ServiceInstance{
			Addr:   advertiseAddr,
			Weight: 1,
		}, registerTTL); err != nil {
			listener.Close()
			return errors.Wrap(err, "register service")
		}
	}

	s.logger.Info("serving", zap.String("address", address))
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Addr returns the bound listener address, or "" before Serve has started.
// Handy with a ":0" listen address.
func (s *Server) Addr() string {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleConn serves one connection: a fresh handler session, then a
// sequential read-dispatch-reply loop until the peer goes away or the stream
// becomes unusable.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	cs := &connState{
		sess: s.factory(),
		r:    wire.NewReader(conn),
		w:    wire.NewWriter(conn),
	}
	defer cs.close()

	for {
		name, kind, seq, err := cs.r.ReadMessageBegin()
		if err != nil {
			if errors.Cause(err) != io.EOF {
				s.logger.Debug("connection read failed", zap.Error(err))
			}
			return
		}
		if kind != wire.KindCall {
			s.logger.Warn("dropping connection: unexpected message kind",
				zap.Uint8("kind", uint8(kind)))
			return
		}
		if !s.serveCall(cs, name, seq) {
			return
		}
	}
}

// serveCall processes one request. It reports whether the connection is
// still usable for the next one.
func (s *Server) serveCall(cs *connState, name string, seq int32) bool {
	s.wg.Add(1)
	defer s.wg.Done()

	proc, ok := processMap[name]
	if !ok {
		// Consume the args struct so the stream stays aligned, then report
		// without ever touching a handler.
		if err := cs.r.Skip(wire.TypeStruct); err != nil {
			s.logger.Warn("dropping connection: unknown method with unreadable args",
				zap.String("method", name), zap.Error(err))
			return false
		}
		appErr := wire.NewApplicationError(wire.ExceptionUnknownMethod, "unknown method "+name)
		return cs.writeException(s, name, seq, appErr)
	}

	// Args are decoded before the middleware chain runs, so a rejected call
	// still leaves the stream aligned on the next envelope.
	invoke, err := proc(cs)
	if err != nil {
		s.logger.Warn("dropping connection: args decode failed",
			zap.String("method", name), zap.Error(err))
		return false
	}

	call := &middleware.Call{Method: name, Seq: seq}
	err = s.chain(invoke)(context.Background(), call)
	if err == nil {
		return !call.Abandoned
	}

	var appErr *wire.ApplicationError
	if !errors.As(err, &appErr) {
		// Reply encoding or write failure: nothing sane can be sent back.
		s.logger.Warn("dropping connection", zap.String("method", name), zap.Error(err))
		return false
	}
	if !cs.writeException(s, name, seq, appErr) {
		return false
	}
	return !call.Abandoned
}

// Shutdown stops the server gracefully:
//  1. deregister, so clients stop opening sessions here;
//  2. set the shutdown flag, then close the listener;
//  3. wait for in-flight requests, bounded by timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.registry != nil {
		if err := s.registry.Deregister(queryservice.ServiceName, s.advertiseAddr); err != nil {
			s.logger.Warn("deregister failed", zap.Error(err))
		}
	}

	// Flag before close, so the accept loop reads the error as intentional.
	s.shutdown.Store(true)
	s.lnMu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.lnMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("timeout waiting for in-flight requests")
	}
}
