package client

import (
	"github.com/pkg/errors"
)

// Pool is a fixed-size pool of independent sessions against one server, for
// callers that need concurrent queries. Sessions are borrowed exclusively
// (a query session cannot be shared) and handed back when the caller is done
// with its result set.
type Pool struct {
	clients chan *Client
	addr    string
}

// NewPool dials size sessions against addr up front. Failing any dial closes
// the ones already opened and reports the error.
func NewPool(addr string, size int, opts ...Option) (*Pool, error) {
	if size < 1 {
		return nil, errors.New("pool size must be at least 1")
	}
	p := &Pool{
		clients: make(chan *Client, size),
		addr:    addr,
	}
	for i := 0; i < size; i++ {
		c, err := Dial(addr, opts...)
		if err != nil {
			p.Close()
			return nil, errors.Wrapf(err, "dial session %d/%d", i+1, size)
		}
		p.clients <- c
	}
	return p, nil
}

// Get borrows a session, blocking until one is free.
func (p *Pool) Get() *Client {
	return <-p.clients
}

// Put returns a borrowed session.
func (p *Pool) Put(c *Client) {
	p.clients <- c
}

// Close closes every idle session. Borrowed sessions are the borrower's
// responsibility.
func (p *Pool) Close() error {
	for {
		select {
		case c := <-p.clients:
			c.Close()
		default:
			return nil
		}
	}
}
