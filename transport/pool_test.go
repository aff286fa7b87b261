package transport

import (
	"net"
	"testing"
	"time"
)

// idleServer accepts and holds connections without speaking the protocol.
func idleServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			if _, err := ln.Accept(); err != nil {
				return
			}
		}
	}()
	return ln.Addr().String()
}

func TestPoolReusesConnections(t *testing.T) {
	p := NewPool(idleServer(t), 2)
	defer p.Close()

	c1, err := p.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	p.Put(c1)

	c2, err := p.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c1 != c2 {
		t.Error("idle connection was not reused")
	}
	p.Put(c2)
}

func TestPoolDiscardFreesSlot(t *testing.T) {
	p := NewPool(idleServer(t), 1)
	defer p.Close()

	c1, err := p.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	p.Discard(c1)

	// With the single slot freed, Get must dial fresh instead of blocking.
	c2, err := p.Get()
	if err != nil {
		t.Fatalf("get after discard: %v", err)
	}
	if c2 == c1 {
		t.Error("discarded connection was handed out again")
	}
	p.Put(c2)
}

func TestPoolBlocksAtCap(t *testing.T) {
	p := NewPool(idleServer(t), 1)
	defer p.Close()

	c, err := p.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	got := make(chan *Conn)
	go func() {
		c2, err := p.Get()
		if err != nil {
			return
		}
		got <- c2
	}()

	select {
	case <-got:
		t.Fatal("Get returned while the pool was at cap with nothing idle")
	case <-time.After(100 * time.Millisecond):
	}

	p.Put(c)
	c2 := <-got
	if c2 != c {
		t.Error("waiter did not receive the returned connection")
	}
	p.Put(c2)
}

func TestPoolClosed(t *testing.T) {
	p := NewPool(idleServer(t), 1)
	p.Close()

	if _, err := p.Get(); err == nil {
		t.Fatal("expected error from Get on a closed pool")
	}
}

func TestPoolDialFailure(t *testing.T) {
	// Grab a port and release it so the dial has nowhere to land.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	p := NewPool(addr, 1)
	defer p.Close()

	if _, err := p.Get(); err == nil {
		t.Fatal("expected dial error")
	}
	// The failed dial must not leak its slot.
	if _, err := p.Get(); err == nil {
		t.Fatal("expected dial error on retry")
	}
}
