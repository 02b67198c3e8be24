package loadbalance

import (
	"math/rand/v2"

	"pipemsg/registry"
)

// WeightedRandomBalancer picks endpoints with probability proportional to Weight.
// Endpoints with no positive weight are picked uniformly.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(endpoints []registry.Endpoint) (*registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	// 计算总权重
	totalWeight := 0
	for _, ep := range endpoints {
		if ep.Weight > 0 {
			totalWeight += ep.Weight
		}
	}
	if totalWeight == 0 {
		return &endpoints[rand.IntN(len(endpoints))], nil
	}

	// 生成一个随机数，范围是0到总权重
	r := rand.IntN(totalWeight)
	for i := range endpoints {
		if endpoints[i].Weight <= 0 {
			continue
		}
		r -= endpoints[i].Weight
		if r < 0 {
			return &endpoints[i], nil
		}
	}

	return &endpoints[len(endpoints)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
