package loadbalance

import (
	"math/rand"

	"github.com/pkg/errors"

	"queryrpc/registry"
)

// WeightedRandom picks instances with probability proportional to their
// advertised weight. Instances with no weight set fall back to a uniform
// pick, so a registry populated without weights still balances.
type WeightedRandom struct{}

func (b *WeightedRandom) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, errors.New("no instances available")
	}

	totalWeight := 0
	for _, inst := range instances {
		totalWeight += inst.Weight
	}
	if totalWeight <= 0 {
		return &instances[rand.Intn(len(instances))], nil
	}

	r := rand.Intn(totalWeight)
	for i := range instances {
		r -= instances[i].Weight
		if r < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandom) Name() string {
	return "WeightedRandom"
}
