// Package loadbalance picks one endpoint when several listeners announce the same
// service name.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity listeners
//   - WeightedRandom:  listeners announced with different weights
//   - ConsistentHash:  the same key always reaches the same listener
package loadbalance

import (
	"errors"

	"pipemsg/registry"
)

var ErrNoEndpoints = errors.New("loadbalance: no endpoints available")

// Balancer is the interface for load balancing strategies.
// Pick is called on every exchange and must be goroutine-safe.
type Balancer interface {
	Pick(endpoints []registry.Endpoint) (*registry.Endpoint, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the balancer called name, defaulting to round robin.
func New(name string) Balancer {
	switch name {
	case "WeightedRandom", "weighted_random", "weighted":
		return &WeightedRandomBalancer{}
	default:
		return &RoundRobinBalancer{}
	}
}
