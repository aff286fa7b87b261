package loadbalance

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"queryrpc/registry"
)

// RoundRobin distributes sessions evenly across instances using an atomic
// counter, so it is goroutine-safe without locking.
type RoundRobin struct {
	counter atomic.Int64
}

// Pick selects the next instance in order.
func (b *RoundRobin) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, errors.New("no instances available")
	}
	index := b.counter.Add(1) % int64(len(instances))
	return &instances[index], nil
}

func (b *RoundRobin) Name() string {
	return "RoundRobin"
}
