package agent

import (
	"context"
	"log"
	"sync"

	"github.com/pysugar/agent-nexus/internal/metrics"
)

// Builder assembles a runtime agent.
type Builder interface {
	Build(ctx context.Context, agentID string) (*RuntimeAgent, error)
}

// Cache keeps one assembled agent per id until it is invalidated. Two concurrent misses for
// the same id may both build; the last one stored wins.
type Cache struct {
	builder Builder

	mu     sync.RWMutex
	agents map[string]*RuntimeAgent
}

// NewCache creates an empty cache backed by builder.
func NewCache(builder Builder) *Cache {
	return &Cache{builder: builder, agents: make(map[string]*RuntimeAgent)}
}

// Get returns the cached agent or builds and stores it. Failed builds are not cached.
func (c *Cache) Get(ctx context.Context, agentID string) (*RuntimeAgent, error) {
	c.mu.RLock()
	ra, ok := c.agents[agentID]
	c.mu.RUnlock()
	if ok {
		metrics.AgentCache.WithLabelValues("hit").Inc()
		return ra, nil
	}

	metrics.AgentCache.WithLabelValues("miss").Inc()
	ra, err := c.builder.Build(ctx, agentID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.agents[agentID] = ra
	c.mu.Unlock()
	return ra, nil
}

// Invalidate drops the given agents so the next Get rebuilds them.
func (c *Cache) Invalidate(agentIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range agentIDs {
		if _, ok := c.agents[id]; ok {
			delete(c.agents, id)
			log.Printf("🔄 Agent %s evicted from cache", id)
		}
	}
}

// Len is the number of cached agents.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.agents)
}
