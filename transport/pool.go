// Connection pool: exclusive borrow/return over a buffered channel.
//
// Because a Conn is single-caller by design, the pool hands out connections
// exclusively: a borrowed Conn belongs to one goroutine until returned. The
// buffered channel doubles as a FIFO queue with built-in blocking when the
// pool is drained.

package transport

import (
	"sync"

	"github.com/pkg/errors"
)

// Pool manages reusable connections to a single server address. Connections
// are created lazily up to maxConns; Get blocks once the cap is reached and
// everything is borrowed.
type Pool struct {
	mu       sync.Mutex
	conns    chan *Conn
	addr     string
	maxConns int
	curConns int
	closed   bool
}

// NewPool creates a pool for addr holding at most maxConns connections.
func NewPool(addr string, maxConns int) *Pool {
	if maxConns < 1 {
		maxConns = 1
	}
	return &Pool{
		conns:    make(chan *Conn, maxConns),
		addr:     addr,
		maxConns: maxConns,
	}
}

// Get borrows a connection, dialing a new one if the pool is empty and under
// its cap. The caller must hand it back with Put, or with Discard if the
// connection failed mid-call.
func (p *Pool) Get() (*Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.New("pool is closed")
	}
	select {
	case c := <-p.conns:
		p.mu.Unlock()
		return c, nil
	default:
	}
	if p.curConns < p.maxConns {
		p.curConns++
		p.mu.Unlock()
		c, err := Dial(p.addr)
		if err != nil {
			p.mu.Lock()
			p.curConns--
			p.mu.Unlock()
			return nil, err
		}
		return c, nil
	}
	p.mu.Unlock()

	// At cap: wait for a return.
	c, ok := <-p.conns
	if !ok {
		return nil, errors.New("pool is closed")
	}
	return c, nil
}

// Put returns a healthy connection to the pool.
func (p *Pool) Put(c *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		c.Close()
		return
	}
	select {
	case p.conns <- c:
	default:
		p.curConns--
		c.Close()
	}
}

// Discard closes a borrowed connection instead of returning it, freeing its
// slot so Get can dial a replacement. Use after any transport-level error.
func (p *Pool) Discard(c *Conn) {
	c.Close()
	p.mu.Lock()
	p.curConns--
	p.mu.Unlock()
}

// Close closes the pool and every idle connection. Borrowed connections are
// closed as they come back through Put.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.conns)
	p.mu.Unlock()

	for c := range p.conns {
		c.Close()
	}
	return nil
}
