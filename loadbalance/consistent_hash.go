package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"queryrpc/registry"
)

// ConsistentHash maps a session key (e.g. a client identity) to an instance
// on a hash ring, so the same key keeps landing on the same server across
// reconnects while membership is stable.
//
// Each real instance is placed on the ring as N virtual nodes; without them
// a handful of instances can cluster on the ring and skew the load.
//
// Note: ConsistentHash is keyed and therefore does not implement Balancer;
// Pick takes the session key, not the instance list.
type ConsistentHash struct {
	mu       sync.RWMutex
	replicas int
	ring     []uint32
	nodes    map[uint32]registry.ServiceInstance
}

// NewConsistentHash creates a ring with 100 virtual nodes per instance.
func NewConsistentHash() *ConsistentHash {
	return &ConsistentHash{
		replicas: 100,
		nodes:    make(map[uint32]registry.ServiceInstance),
	}
}

// Rebuild replaces the ring contents with the given instances. Call it with
// every update from a registry watch.
func (b *ConsistentHash) Rebuild(instances []registry.ServiceInstance) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring = b.ring[:0]
	clear(b.nodes)
	for _, inst := range instances {
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", inst.Addr, i)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = inst
		}
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

// Pick maps the key to the first ring node at or after its hash, wrapping
// around at the end of the ring.
func (b *ConsistentHash) Pick(key string) (*registry.ServiceInstance, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.ring) == 0 {
		return nil, errors.New("no instances available")
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool { return b.ring[i] >= hash })
	if idx == len(b.ring) {
		idx = 0
	}
	inst := b.nodes[b.ring[idx]]
	return &inst, nil
}

func (b *ConsistentHash) Name() string {
	return "ConsistentHash"
}
