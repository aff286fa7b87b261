package registry

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Cache wraps a Registry with a watch-fed in-memory instance list, so that
// Discover is a memory read instead of a network round trip. The first
// Discover for a service primes the cache and starts a background watcher
// that keeps it fresh.
//
// Cache implements Registry and can be dropped in anywhere one is expected.
type Cache struct {
	inner     Registry
	instances *xsync.MapOf[string, []ServiceInstance]
	watching  *xsync.MapOf[string, struct{}]
}

// NewCache builds a caching layer over inner.
func NewCache(inner Registry) *Cache {
	return &Cache{
		inner:     inner,
		instances: xsync.NewMapOf[string, []ServiceInstance](),
		watching:  xsync.NewMapOf[string, struct{}](),
	}
}

// Register passes through; the watcher picks up the change.
func (c *Cache) Register(serviceName string, instance ServiceInstance, ttl int64) error {
	return c.inner.Register(serviceName, instance, ttl)
}

// Deregister passes through; the watcher picks up the change.
func (c *Cache) Deregister(serviceName string, addr string) error {
	return c.inner.Deregister(serviceName, addr)
}

// Discover returns the cached instance list, falling back to the inner
// registry on first use.
func (c *Cache) Discover(serviceName string) ([]ServiceInstance, error) {
	if cached, ok := c.instances.Load(serviceName); ok {
		return cached, nil
	}
	instances, err := c.inner.Discover(serviceName)
	if err != nil {
		return nil, err
	}
	c.instances.Store(serviceName, instances)
	c.watch(serviceName)
	return instances, nil
}

// Watch delegates to the inner registry.
func (c *Cache) Watch(serviceName string) <-chan []ServiceInstance {
	return c.inner.Watch(serviceName)
}

// watch starts at most one background updater per service.
func (c *Cache) watch(serviceName string) {
	if _, loaded := c.watching.LoadOrStore(serviceName, struct{}{}); loaded {
		return
	}
	go func() {
		for instances := range c.inner.Watch(serviceName) {
			c.instances.Store(serviceName, instances)
		}
		// Watch channel closed: drop state so a later Discover re-primes.
		c.instances.Delete(serviceName)
		c.watching.Delete(serviceName)
	}()
}
