package loadbalance

import (
	"math/rand"
	"netcall/registry"
)

// WeightedRandomBalancer picks an endpoint with probability proportional to
// its weight. Endpoints with a non-positive weight count as weight 1.
type WeightedRandomBalancer struct{}

func weightOf(ep registry.Endpoint) int {
	if ep.Weight <= 0 {
		return 1
	}
	return ep.Weight
}

func (b *WeightedRandomBalancer) Pick(key string, endpoints []registry.Endpoint) (*registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	totalWeight := 0
	for _, ep := range endpoints {
		totalWeight += weightOf(ep)
	}

	// Random point in [0, totalWeight), then walk until it is covered
	r := rand.Intn(totalWeight)
	for i := range endpoints {
		r -= weightOf(endpoints[i])
		if r < 0 {
			return &endpoints[i], nil
		}
	}
	return &endpoints[len(endpoints)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
