// Package ristretto implements the token count cache on dgraph-io/ristretto.
package ristretto

import "github.com/dgraph-io/ristretto/v2"

// TokenCountCache caches exact token counts keyed by model and text, so
// repeated chunks (tool args, recurring phrases) skip the tokenizer race.
type TokenCountCache struct {
	c *ristretto.Cache[string, int]
}

// NewTokenCountCache creates a cache bounded to maxCostBytes of keys.
func NewTokenCountCache(maxCostBytes int64) (*TokenCountCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, int]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &TokenCountCache{c: c}, nil
}

// Get returns the cached count for key.
func (t *TokenCountCache) Get(key string) (int, bool) {
	return t.c.Get(key)
}

// Set stores the count, costed by the key size (the value is a word).
func (t *TokenCountCache) Set(key string, tokens int) {
	t.c.Set(key, tokens, int64(len(key)))
}

// Close shuts down the cache and releases resources.
func (t *TokenCountCache) Close() {
	t.c.Close()
}
