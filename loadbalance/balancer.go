// Package loadbalance provides strategies for choosing which endpoint serves
// a call when a Directory lists several for the same object id.
//
// Three strategies are implemented:
//   - RoundRobin:      Stateless objects, equal-capacity endpoints
//   - WeightedRandom:  Heterogeneous endpoints (different CPU/memory)
//   - ConsistentHash:  Stateful objects; the same object id keeps its endpoint
package loadbalance

import (
	"errors"
	"netcall/registry"
)

// ErrNoEndpoints is returned by Pick when the endpoint list is empty.
var ErrNoEndpoints = errors.New("loadbalance: no endpoints available")

// Balancer is the interface for load balancing strategies.
// The router calls Pick() before each call to select a target endpoint.
type Balancer interface {
	// Pick selects one endpoint from the available list. key is the object
	// id of the call; strategies without affinity ignore it.
	// Called on every call, must be goroutine-safe.
	Pick(key string, endpoints []registry.Endpoint) (*registry.Endpoint, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// ByName returns a fresh balancer for "roundRobin", "weightedRandom" or
// "consistentHash" ("" selects consistentHash).
func ByName(name string) (Balancer, error) {
	switch name {
	case "", "consistentHash":
		return NewConsistentHashBalancer(), nil
	case "roundRobin":
		return &RoundRobinBalancer{}, nil
	case "weightedRandom":
		return &WeightedRandomBalancer{}, nil
	}
	return nil, errors.New("loadbalance: unknown strategy " + name)
}
