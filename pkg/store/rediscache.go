package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"argus/pkg/intel"
)

// CachedGraph decorates a GraphQuerier-compatible store with a redis cache
// for degree and reverse-edge lookups. The cache is advisory: any redis
// failure falls through to the underlying graph, so results never change,
// only latency. Entity lookups are not cached; full records are cheap to
// keep in the MemoryGraph already.
type CachedGraph struct {
	inner  *MemoryGraph
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCachedGraph wraps a memory graph with a redis lookup cache.
func NewCachedGraph(inner *MemoryGraph, client *redis.Client, ttl time.Duration) *CachedGraph {
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &CachedGraph{inner: inner, client: client, ttl: ttl, prefix: "argus:graph"}
}

// EntityByID delegates to the in-memory index.
func (c *CachedGraph) EntityByID(id string) (*intel.Entity, bool) {
	return c.inner.EntityByID(id)
}

// DegreeOf returns the cached degree, computing and caching on miss.
func (c *CachedGraph) DegreeOf(id string) int {
	ctx := context.Background()
	key := fmt.Sprintf("%s:deg:%s", c.prefix, id)
	if val, err := c.client.Get(ctx, key).Result(); err == nil {
		if deg, err := strconv.Atoi(val); err == nil {
			return deg
		}
	}
	deg := c.inner.DegreeOf(id)
	_ = c.client.Set(ctx, key, strconv.Itoa(deg), c.ttl).Err()
	return deg
}

// FindReverse returns the cached reverse-edge answer, computing on miss.
func (c *CachedGraph) FindReverse(sourceID, targetID string) bool {
	ctx := context.Background()
	key := fmt.Sprintf("%s:rev:%s:%s", c.prefix, sourceID, targetID)
	if val, err := c.client.Get(ctx, key).Result(); err == nil {
		return val == "1"
	}
	found := c.inner.FindReverse(sourceID, targetID)
	cached := "0"
	if found {
		cached = "1"
	}
	_ = c.client.Set(ctx, key, cached, c.ttl).Err()
	return found
}

// Invalidate drops cached lookups for an entity after its edges change.
func (c *CachedGraph) Invalidate(ctx context.Context, id string) error {
	key := fmt.Sprintf("%s:deg:%s", c.prefix, id)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("invalidate degree cache: %w", err)
	}
	return nil
}
