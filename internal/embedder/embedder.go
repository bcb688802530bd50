package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrEmptyText       = errors.New("text cannot be empty")
	ErrEmptyResponse   = errors.New("transport returned no vectors")
	ErrZeroDimension   = errors.New("transport returned a zero-length vector")
	ErrNoTransports    = errors.New("no embedding transport configured")
	ErrEndpointBackoff = errors.New("endpoint in backoff")
)

// Embedder is the contract the router consumes.
type Embedder interface {
	// Embed generates the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the vector dimension, or 0 if not yet known.
	Dimension() int

	// Close releases any resources held by the embedder.
	Close() error
}

// Cache provides in-memory LRU caching of vectors by content hash.
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates an embedding cache with LRU eviction.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 4096
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		// Only reachable with a non-positive size, which is guarded above.
		cache, _ = lru.New[string, []float32](4096)
	}
	return &Cache{cache: cache}
}

// Get retrieves a copy of a cached vector. The copy keeps callers from
// mutating the cached value.
func (c *Cache) Get(hash string) ([]float32, bool) {
	v, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Set stores a vector; LRU eviction is automatic at capacity.
func (c *Cache) Set(hash string, vector []float32) {
	stored := make([]float32, len(vector))
	copy(stored, vector)
	c.cache.Add(hash, stored)
}

// Size returns the current entry count.
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes the SHA-256 hash of text, used as the cache key for
// both the in-process and persisted tiers.
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
