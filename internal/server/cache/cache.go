// Package cache keeps recently served species profiles in memory so repeated
// HTTP queries skip the record store. It wraps patrickmn/go-cache, keyed by
// normalized query, and remembers which keys point at which entity so a
// fresh merge can evict every stale alias at once.
package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/agentstation/taxamap/pkg/taxa"
)

// Cache is a TTL cache of profiles.
type Cache struct {
	store *gocache.Cache

	mu      sync.Mutex
	aliases map[string]map[string]struct{} // entity id -> cached keys
	hits    uint64
	misses  uint64
}

// New creates a cache whose entries live for ttl.
func New(ttl, cleanupInterval time.Duration) *Cache {
	c := &Cache{
		store:   gocache.New(ttl, cleanupInterval),
		aliases: make(map[string]map[string]struct{}),
	}
	c.store.OnEvicted(func(key string, v any) {
		if p, ok := v.(*taxa.Profile); ok && p.Entity != nil {
			c.forget(p.Entity.ID, key)
		}
	})
	return c
}

// Get returns the cached profile for a query.
func (c *Cache) Get(query string) (*taxa.Profile, bool) {
	key := taxa.NormalizeName(query)
	v, ok := c.store.Get(key)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return v.(*taxa.Profile), true
}

// Set caches p under query.
func (c *Cache) Set(query string, p *taxa.Profile) {
	if p == nil || p.Entity == nil {
		return
	}
	key := taxa.NormalizeName(query)
	c.store.Set(key, p, gocache.DefaultExpiration)

	c.mu.Lock()
	defer c.mu.Unlock()
	keys, ok := c.aliases[p.Entity.ID]
	if !ok {
		keys = make(map[string]struct{})
		c.aliases[p.Entity.ID] = keys
	}
	keys[key] = struct{}{}
}

// Invalidate drops every cached query that resolved to entityID.
func (c *Cache) Invalidate(entityID string) int {
	c.mu.Lock()
	keys := c.aliases[entityID]
	delete(c.aliases, entityID)
	c.mu.Unlock()

	for key := range keys {
		c.store.Delete(key)
	}
	return len(keys)
}

// Clear removes everything.
func (c *Cache) Clear() {
	c.store.Flush()
	c.mu.Lock()
	clear(c.aliases)
	c.mu.Unlock()
}

// ItemCount returns the number of cached queries.
func (c *Cache) ItemCount() int {
	return c.store.ItemCount()
}

func (c *Cache) forget(entityID, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if keys, ok := c.aliases[entityID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.aliases, entityID)
		}
	}
}

// Stats is a snapshot of cache usage.
type Stats struct {
	ItemCount int    `json:"item_count"`
	Entities  int    `json:"entities"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
}

// GetStats returns current statistics.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		ItemCount: c.store.ItemCount(),
		Entities:  len(c.aliases),
		Hits:      c.hits,
		Misses:    c.misses,
	}
}
