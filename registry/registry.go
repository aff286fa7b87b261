// Package registry provides service discovery for query servers.
//
// Servers register their advertise address under a well-known etcd prefix;
// clients discover live instances and pick one at connect time. Registration
// is lease-based: a crashed server's entry expires on its own, so clients
// never discover ghosts.
package registry

// ServiceInstance is one advertised server endpoint.
type ServiceInstance struct {
	Addr    string
	Weight  int // Relative capacity, consumed by the weighted balancer
	Version string
}

// Registry is the discovery interface. The etcd implementation is the real
// one; tests substitute in-memory fakes.
type Registry interface {
	// Register advertises an instance with a TTL in seconds. The entry is
	// kept alive until Deregister or process death.
	Register(serviceName string, instance ServiceInstance, ttl int64) error
	// Deregister removes an instance. Called during graceful shutdown
	// before the listener closes.
	Deregister(serviceName string, addr string) error
	// Discover returns the currently registered instances of a service.
	Discover(serviceName string) ([]ServiceInstance, error)
	// Watch emits the full instance list whenever membership changes.
	Watch(serviceName string) <-chan []ServiceInstance
}
