package router

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rsloan/skillroute/pkg/types"
)

// Result cache defaults.
const (
	DefaultCacheCapacity = 512
	DefaultCacheTTL      = 5 * time.Minute
)

// cacheEntry holds one finished, ranked candidate list until expiry.
type cacheEntry struct {
	candidates []types.RouteCandidate
	expiresAt  time.Time
}

// ResultCache is the capacity- and TTL-bounded cache of ranked route
// candidate lists. LRU eviction handles overflow; expired entries read as
// misses and are removed on access.
type ResultCache struct {
	cache *lru.Cache[string, *cacheEntry]
	ttl   time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewResultCache creates a result cache.
func NewResultCache(capacity int, ttl time.Duration) *ResultCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	cache, err := lru.New[string, *cacheEntry](capacity)
	if err != nil {
		cache, _ = lru.New[string, *cacheEntry](DefaultCacheCapacity)
	}
	return &ResultCache{cache: cache, ttl: ttl}
}

// Key builds the composite cache key. The collection leads the key so
// point invalidation can match on a name prefix; query text is normalized
// (lowercased, whitespace collapsed) so trivially different spellings of
// the same query share an entry.
func Key(collection, text string, limit int, threshold float64, profile string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	return fmt.Sprintf("%s|%d|%.4f|%s|%s", collection, limit, threshold, profile, norm)
}

// Get returns a copy of a cached candidate list.
func (c *ResultCache) Get(key string) ([]types.RouteCandidate, bool) {
	entry, found := c.cache.Get(key)
	if !found {
		c.misses.Add(1)
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.cache.Remove(key)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	out := make([]types.RouteCandidate, len(entry.candidates))
	copy(out, entry.candidates)
	return out, true
}

// Set stores a ranked candidate list under key.
func (c *ResultCache) Set(key string, candidates []types.RouteCandidate) {
	stored := make([]types.RouteCandidate, len(candidates))
	copy(stored, candidates)
	c.cache.Add(key, &cacheEntry{
		candidates: stored,
		expiresAt:  time.Now().Add(c.ttl),
	})
}

// InvalidateCollection removes every entry whose key belongs to the named
// collection; used when that collection's underlying data changes. Returns
// the number of entries removed.
func (c *ResultCache) InvalidateCollection(collection string) int {
	prefix := collection + "|"
	removed := 0
	for _, key := range c.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			if c.cache.Remove(key) {
				removed++
			}
		}
	}
	return removed
}

// Clear drops every entry.
func (c *ResultCache) Clear() {
	c.cache.Purge()
}

// Len returns the current entry count.
func (c *ResultCache) Len() int {
	return c.cache.Len()
}

// Stats reports hit/miss counters for observability.
func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
