// Package transport implements the client-side connection layer.
//
// A query-service connection carries strictly sequential round trips: the
// caller writes one request and blocks on the matching reply before anything
// else may use the connection. There is no multiplexing; fetch state lives
// on the server side of the connection, so interleaving calls from multiple
// goroutines would corrupt not just the byte stream but the session.
//
// Concurrency is achieved one level up, by pooling whole connections
// (see Pool), never by sharing one.
package transport

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"queryrpc/wire"
)

// Conn is a single query-service connection: a net.Conn plus the protocol
// reader/writer and a mutex that serializes round trips.
type Conn struct {
	conn    net.Conn
	r       *wire.Reader
	w       *wire.Writer
	mu      sync.Mutex // One round trip in flight at a time
	timeout time.Duration
}

// Dial opens a TCP connection to a query server.
func Dial(addr string) (*Conn, error) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	return NewConn(c), nil
}

// NewConn wraps an established connection. Useful for tests and custom
// dialers (unix sockets, TLS).
func NewConn(c net.Conn) *Conn {
	return &Conn{
		conn: c,
		r:    wire.NewReader(c),
		w:    wire.NewWriter(c),
	}
}

// SetTimeout sets an optional per-round-trip deadline. Zero (the default)
// means calls block until the server replies or the connection dies.
func (c *Conn) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// RoundTrip performs one complete call: encode and send the request under a
// Call envelope, then block until the reply envelope is read and decoded.
//
// Reply handling, in order:
//   - an Exception envelope decodes to an *wire.ApplicationError and is
//     returned as the call's error;
//   - a Reply envelope must echo the method name and sequence id, otherwise
//     the stream is desynchronized and a wrong-method-name / bad-sequence-id
//     application error is returned;
//   - otherwise the result struct is decoded from the reply payload.
//
// Transport failures (connection loss, corrupt stream) propagate as plain
// wrapped errors; after one of those the connection must not be reused.
func (c *Conn) RoundTrip(method string, seq int32, args wire.Encoder, result wire.Decoder) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timeout > 0 {
		// A deadline that fails to arm would silently turn a bounded call
		// into an unbounded one, so both the set and the clear are checked.
		if derr := c.conn.SetDeadline(time.Now().Add(c.timeout)); derr != nil {
			return errors.Wrapf(derr, "call %s: set deadline", method)
		}
		defer func() {
			if derr := c.conn.SetDeadline(time.Time{}); derr != nil && err == nil {
				err = errors.Wrapf(derr, "call %s: clear deadline", method)
			}
		}()
	}

	if err := c.w.WriteMessageBegin(method, wire.KindCall, seq); err != nil {
		return errors.Wrapf(err, "call %s: send", method)
	}
	if err := args.Encode(c.w); err != nil {
		return errors.Wrapf(err, "call %s: encode args", method)
	}
	if err := c.w.Flush(); err != nil {
		return errors.Wrapf(err, "call %s: flush", method)
	}

	name, kind, rseq, err := c.r.ReadMessageBegin()
	if err != nil {
		return errors.Wrapf(err, "call %s: receive", method)
	}
	if kind == wire.KindException {
		appErr := &wire.ApplicationError{}
		if err := appErr.Decode(c.r); err != nil {
			return errors.Wrapf(err, "call %s: decode exception", method)
		}
		return appErr
	}
	if kind != wire.KindReply {
		return errors.Errorf("call %s: unexpected message kind %d", method, kind)
	}
	if name != method {
		return wire.NewApplicationError(wire.ExceptionWrongMethodName,
			"expected reply to "+method+", got "+name)
	}
	if rseq != seq {
		return wire.NewApplicationError(wire.ExceptionBadSequenceID,
			"out of sequence reply for "+method)
	}
	if err := result.Decode(c.r); err != nil {
		return errors.Wrapf(err, "call %s: decode result", method)
	}
	return nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
