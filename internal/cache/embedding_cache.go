// Package cache provides a small bounded cache for query embeddings so
// repeated searches do not pay for repeated embedding-model calls.
package cache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the number of query embeddings kept before
// least-recently-used eviction kicks in.
const DefaultCapacity = 256

// EmbeddingCache maps (embedding model, query text) to a vector.
// Entries are evicted purely by recency; a stale entry is
// indistinguishable from a fresh one, so a model change must be
// reflected in the key (it is, via the model prefix).
type EmbeddingCache struct {
	mu  sync.Mutex
	lru *lru.Cache[string, []float32]
}

// NewEmbeddingCache creates a cache with the given capacity.
// A non-positive capacity falls back to DefaultCapacity.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	// lru.New only errors on non-positive size, which is guarded above.
	c, _ := lru.New[string, []float32](capacity)
	return &EmbeddingCache{lru: c}
}

// GetOrCompute returns the cached vector for (model, text), invoking
// compute on a miss and storing the result. Compute failures are not
// cached, so a transient embedder outage does not poison the cache.
func (c *EmbeddingCache) GetOrCompute(ctx context.Context, model, text string, compute func(ctx context.Context, text string) ([]float32, error)) ([]float32, error) {
	key := model + ":" + text

	c.mu.Lock()
	if vec, ok := c.lru.Get(key); ok {
		c.mu.Unlock()
		return vec, nil
	}
	c.mu.Unlock()

	vec, err := compute(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lru.Add(key, vec)
	c.mu.Unlock()

	return vec, nil
}

// Len returns the number of cached entries.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
