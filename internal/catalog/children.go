package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/david/campsite-finder/internal/metrics"
	"github.com/david/campsite-finder/internal/models"
)

// DefaultChildrenTTL is how long park metadata is served from memory.
const DefaultChildrenTTL = 24 * time.Hour

type childrenEntry struct {
	value     models.ParkChildren
	expiresAt time.Time
}

// ChildrenCache keeps park facility/unit metadata keyed by "source:parkId".
// Concurrent fills for the same key may both fetch; the last writer wins.
type ChildrenCache struct {
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics

	mu    sync.RWMutex
	items map[string]childrenEntry
}

func NewChildrenCache(ttl time.Duration, m *metrics.Metrics) *ChildrenCache {
	if ttl <= 0 {
		ttl = DefaultChildrenTTL
	}
	return &ChildrenCache{ttl: ttl, now: time.Now, metrics: m, items: map[string]childrenEntry{}}
}

func childrenKey(src models.Source, parkID string) string {
	return string(src) + ":" + parkID
}

// Get returns a live entry.
func (c *ChildrenCache) Get(src models.Source, parkID string) (models.ParkChildren, bool) {
	key := childrenKey(src, parkID)
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()

	if ok && c.now().After(entry.expiresAt) {
		c.mu.Lock()
		if cur, still := c.items[key]; still && c.now().After(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		ok = false
	}
	c.metrics.ChildrenCache(ok)
	if !ok {
		return models.ParkChildren{}, false
	}
	return entry.value, true
}

func (c *ChildrenCache) Set(src models.Source, parkID string, value models.ParkChildren) {
	c.mu.Lock()
	c.items[childrenKey(src, parkID)] = childrenEntry{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// GetOrLoad serves from the cache or calls load and stores a successful result.
func (c *ChildrenCache) GetOrLoad(ctx context.Context, src models.Source, parkID string, load func(context.Context, string) (models.ParkChildren, error)) (models.ParkChildren, error) {
	if v, ok := c.Get(src, parkID); ok {
		return v, nil
	}
	v, err := load(ctx, parkID)
	if err != nil {
		return models.ParkChildren{}, err
	}
	c.Set(src, parkID, v)
	return v, nil
}

// Purge drops every entry.
func (c *ChildrenCache) Purge() {
	c.mu.Lock()
	c.items = map[string]childrenEntry{}
	c.mu.Unlock()
}
