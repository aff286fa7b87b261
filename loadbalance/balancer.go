// Package loadbalance provides strategies for picking a query server at
// connect time.
//
// Unlike a stateless RPC service, a query session is pinned to one server
// for its whole life (the fetch cursor lives there), so a balancer runs once
// per session, not once per call:
//   - RoundRobin:      equal-capacity servers
//   - WeightedRandom:  heterogeneous servers
//   - ConsistentHash:  keyed placement, so a reconnecting session lands on
//     the same server while membership is stable
package loadbalance

import (
	"queryrpc/registry"
)

// Balancer selects one instance from the discovered list. Implementations
// must be goroutine-safe: many sessions may connect concurrently.
type Balancer interface {
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name identifies the strategy in logs.
	Name() string
}
