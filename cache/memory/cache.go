// Package memory provides an in-process cqrskit.AggregateCache.
package memory

import (
	"context"
	"sync"

	"github.com/go-gadgets/cqrskit"
)

// Cache holds live aggregate instances in memory, keyed by aggregate id.
type Cache struct {
	mu   sync.RWMutex
	live map[cqrskit.ID]cqrskit.Aggregate
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{live: make(map[cqrskit.ID]cqrskit.Aggregate)}
}

// Get implements cqrskit.AggregateCache.
func (c *Cache) Get(ctx context.Context, aggregateID cqrskit.ID) (cqrskit.Aggregate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	agg, found := c.live[aggregateID]
	return agg, found
}

// Put implements cqrskit.AggregateCache.
func (c *Cache) Put(ctx context.Context, aggregateID cqrskit.ID, agg cqrskit.Aggregate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live[aggregateID] = agg
	return nil
}

// Invalidate implements cqrskit.AggregateCache.
func (c *Cache) Invalidate(ctx context.Context, aggregateID cqrskit.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.live, aggregateID)
	return nil
}
