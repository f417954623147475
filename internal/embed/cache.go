package embed

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of cached vectors.
// At 1536 dimensions * 4 bytes * 4096 entries that is about 25MB.
const DefaultCacheSize = 4096

// Cache is an LRU of vectors keyed by model, input type and text. It is
// owned by whoever builds the Gateway and lives as long as that owner.
type Cache struct {
	lru *lru.Cache[string, []float32]
}

// NewCache creates a cache holding up to size vectors.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, _ := lru.New[string, []float32](size)
	return &Cache{lru: c}
}

func cacheKey(model string, inputType InputType, text string) string {
	hash := sha256.Sum256([]byte(model + "\x00" + string(inputType) + "\x00" + text))
	return hex.EncodeToString(hash[:])
}

// Get returns the cached vector for text under model.
func (c *Cache) Get(model string, inputType InputType, text string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(cacheKey(model, inputType, text))
}

// Add stores a vector.
func (c *Cache) Add(model string, inputType InputType, text string, vec []float32) {
	if c == nil {
		return
	}
	c.lru.Add(cacheKey(model, inputType, text), vec)
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	if c != nil {
		c.lru.Purge()
	}
}
