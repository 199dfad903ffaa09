package rpcpool

import (
	"math/rand"
	"sync/atomic"
)

// LoadBalancingStrategy defines how requests are distributed across endpoints
type LoadBalancingStrategy string

const (
	StrategyRoundRobin LoadBalancingStrategy = "round-robin"
	StrategyWeighted   LoadBalancingStrategy = "weighted"
)

// selector picks one endpoint out of the usable set
type selector struct {
	strategy LoadBalancingStrategy
	next     atomic.Uint32
}

func newSelector(strategy LoadBalancingStrategy) *selector {
	if strategy != StrategyWeighted {
		strategy = StrategyRoundRobin
	}
	return &selector{strategy: strategy}
}

func (s *selector) pick(endpoints []*Endpoint) *Endpoint {
	switch len(endpoints) {
	case 0:
		return nil
	case 1:
		return endpoints[0]
	}

	if s.strategy == StrategyWeighted {
		if ep := pickWeighted(endpoints); ep != nil {
			return ep
		}
	}
	idx := (s.next.Add(1) - 1) % uint32(len(endpoints))
	return endpoints[idx]
}

// pickWeighted draws proportionally to health score; nil when every score is zero.
func pickWeighted(endpoints []*Endpoint) *Endpoint {
	scores := make([]float64, len(endpoints))
	total := 0.0
	for i, ep := range endpoints {
		scores[i] = ep.HealthScore()
		total += scores[i]
	}
	if total == 0 {
		return nil
	}

	target := rand.Float64() * total
	acc := 0.0
	for i, ep := range endpoints {
		acc += scores[i]
		if acc >= target {
			return ep
		}
	}
	return endpoints[len(endpoints)-1]
}
