// Package client implements the query-service client stub.
//
// A Client is one session against one server. Every operation is the same
// four-step pattern: build the args struct, send it under a Call envelope,
// block on the reply, decode the result struct. There is no retry, no
// timeout and no multiplexing in this layer; a call either completes, fails
// with the declared *queryservice.QueryError, or fails with a protocol-level
// *wire.ApplicationError.
//
// Session state (the fetch cursor) lives on the server side of the
// connection, which is why discovery and balancing happen once at connect
// time rather than per call.
package client

import (
	"go.uber.org/zap"

	"queryrpc/loadbalance"
	"queryrpc/queryservice"
	"queryrpc/registry"
	"queryrpc/transport"
	"queryrpc/wire"
)

// Client is a single query session. It is not safe for concurrent use; the
// protocol is strictly sequential. Use Pool for concurrent sessions.
type Client struct {
	conn   *transport.Conn
	addr   string
	seq    int32
	logger *zap.Logger
}

// Option configures a Client at construction.
type Option func(*Client)

// WithLogger attaches a logger; the default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Dial opens a session against a known server address.
func Dial(addr string, opts ...Option) (*Client, error) {
	conn, err := transport.Dial(addr)
	if err != nil {
		return nil, err
	}
	c := &Client{conn: conn, addr: addr, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect discovers instances of the query service and pins the session to
// the one the balancer picks.
func Connect(reg registry.Registry, bal loadbalance.Balancer, opts ...Option) (*Client, error) {
	instances, err := reg.Discover(queryservice.ServiceName)
	if err != nil {
		return nil, err
	}
	instance, err := bal.Pick(instances)
	if err != nil {
		return nil, err
	}
	c, err := Dial(instance.Addr, opts...)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("session connected",
		zap.String("addr", instance.Addr), zap.String("balancer", bal.Name()))
	return c, nil
}

// ConnectWithKey discovers instances of the query service and pins the
// session to the one the hash ring assigns to key. The same key returns to
// the same server while membership is stable, so a reconnecting session can
// land where its earlier queries ran.
func ConnectWithKey(reg registry.Registry, ring *loadbalance.ConsistentHash, key string, opts ...Option) (*Client, error) {
	instances, err := reg.Discover(queryservice.ServiceName)
	if err != nil {
		return nil, err
	}
	ring.Rebuild(instances)
	instance, err := ring.Pick(key)
	if err != nil {
		return nil, err
	}
	c, err := Dial(instance.Addr, opts...)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("session connected",
		zap.String("addr", instance.Addr),
		zap.String("balancer", ring.Name()),
		zap.String("key", key))
	return c, nil
}

// Addr returns the server address this session is pinned to.
func (c *Client) Addr() string {
	return c.addr
}

// Close tears down the session.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) nextSeq() int32 {
	c.seq++
	return c.seq
}

// Execute runs a query on the server, establishing a new result set for the
// fetch operations. Void on success; a rejected query comes back as
// *queryservice.QueryError.
func (c *Client) Execute(query string) error {
	args := queryservice.ExecuteArgs{Query: query}
	var result queryservice.ExecuteResult
	if err := c.conn.RoundTrip(queryservice.MethodExecute, c.nextSeq(), &args, &result); err != nil {
		return err
	}
	if result.Ex != nil {
		return result.Ex
	}
	return nil
}

// FetchOne returns the next serialized result row.
func (c *Client) FetchOne() (string, error) {
	var args queryservice.FetchOneArgs
	var result queryservice.FetchOneResult
	if err := c.conn.RoundTrip(queryservice.MethodFetchOne, c.nextSeq(), &args, &result); err != nil {
		return "", err
	}
	if result.Success != nil {
		return *result.Success, nil
	}
	if result.Ex != nil {
		return "", result.Ex
	}
	return "", wire.NewApplicationError(wire.ExceptionMissingResult, "fetchOne failed: unknown result")
}

// FetchN returns up to numRows rows. numRows = 0 yields an empty slice, not
// an error.
func (c *Client) FetchN(numRows int32) ([]string, error) {
	args := queryservice.FetchNArgs{NumRows: numRows}
	var result queryservice.FetchNResult
	if err := c.conn.RoundTrip(queryservice.MethodFetchN, c.nextSeq(), &args, &result); err != nil {
		return nil, err
	}
	if result.Success != nil {
		return result.Success, nil
	}
	if result.Ex != nil {
		return nil, result.Ex
	}
	return nil, wire.NewApplicationError(wire.ExceptionMissingResult, "fetchN failed: unknown result")
}

// FetchAll returns every remaining row of the current result set.
func (c *Client) FetchAll() ([]string, error) {
	var args queryservice.FetchAllArgs
	var result queryservice.FetchAllResult
	if err := c.conn.RoundTrip(queryservice.MethodFetchAll, c.nextSeq(), &args, &result); err != nil {
		return nil, err
	}
	if result.Success != nil {
		return result.Success, nil
	}
	if result.Ex != nil {
		return nil, result.Ex
	}
	return nil, wire.NewApplicationError(wire.ExceptionMissingResult, "fetchAll failed: unknown result")
}

// GetSchema returns the serialized schema of the current result set.
func (c *Client) GetSchema() (string, error) {
	var args queryservice.GetSchemaArgs
	var result queryservice.GetSchemaResult
	if err := c.conn.RoundTrip(queryservice.MethodGetSchema, c.nextSeq(), &args, &result); err != nil {
		return "", err
	}
	if result.Success != nil {
		return *result.Success, nil
	}
	if result.Ex != nil {
		return "", result.Ex
	}
	return "", wire.NewApplicationError(wire.ExceptionMissingResult, "getSchema failed: unknown result")
}
