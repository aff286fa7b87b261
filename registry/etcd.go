package registry

import (
	"context"
	"encoding/json"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// keyPrefix is the root under which all instances live:
//
//	/queryrpc/{serviceName}/{addr} → JSON-encoded ServiceInstance
const keyPrefix = "/queryrpc/"

// opTimeout bounds individual etcd operations so a partitioned etcd cannot
// hang registration or discovery forever.
const opTimeout = 5 * time.Second

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client
	logger *zap.Logger
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, logger *zap.Logger) (*EtcdRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: opTimeout,
		Logger:      logger.Named("etcd"),
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c, logger: logger}, nil
}

// Register puts the instance under a TTL lease and starts background
// keepalive. If keepalive ever stops (crash, partition), the lease expires
// and the entry disappears on its own.
func (r *EtcdRegistry) Register(serviceName string, instance ServiceInstance, ttl int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}
	key := keyPrefix + serviceName + "/" + instance.Addr
	if _, err = r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	// Keepalive outlives the registration call, so it gets its own context.
	ch, err := r.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
		r.logger.Warn("registry keepalive stopped",
			zap.String("service", serviceName), zap.String("addr", instance.Addr))
	}()

	r.logger.Info("registered instance",
		zap.String("service", serviceName), zap.String("addr", instance.Addr), zap.Int64("ttl", ttl))
	return nil
}

// Deregister removes the instance entry.
func (r *EtcdRegistry) Deregister(serviceName string, addr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	_, err := r.client.Delete(ctx, keyPrefix+serviceName+"/"+addr)
	return err
}

// Discover lists all instances under the service prefix.
func (r *EtcdRegistry) Discover(serviceName string) ([]ServiceInstance, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	resp, err := r.client.Get(ctx, keyPrefix+serviceName+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.logger.Warn("skipping malformed registry entry", zap.ByteString("key", kv.Key))
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch re-lists the service on every membership change. Emitting the full
// list is simpler than interpreting individual watch events and the lists
// are small.
func (r *EtcdRegistry) Watch(serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	go func() {
		watchChan := r.client.Watch(context.Background(), keyPrefix+serviceName+"/", clientv3.WithPrefix())
		for range watchChan {
			instances, err := r.Discover(serviceName)
			if err != nil {
				r.logger.Warn("re-list after watch event failed", zap.Error(err))
				continue
			}
			ch <- instances
		}
		close(ch)
	}()
	return ch
}

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
