package services

import (
	"strings"
	"sync"
	"time"

	"dealscout/models"
)

type cacheEntry struct {
	quote     *models.PriceQuote
	createdAt time.Time
}

// PriceCache is the in-process quote cache owned by the price engine.
// Entries older than the TTL are evicted on read.
type PriceCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewPriceCache creates a cache whose entries live for ttl. ttl <= 0 keeps
// entries for the life of the process.
func NewPriceCache(ttl time.Duration, now func() time.Time) *PriceCache {
	if now == nil {
		now = time.Now
	}
	return &PriceCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     now,
	}
}

// CacheKey normalises (searchTerm, condition) into a cache key.
func CacheKey(searchTerm, condition string) string {
	return strings.ToLower(collapseSpaces(searchTerm)) + ":" + strings.ToLower(strings.TrimSpace(condition))
}

// Get returns the cached quote for key if present and not expired.
func (c *PriceCache) Get(key string) (*models.PriceQuote, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.ttl > 0 && c.now().Sub(entry.createdAt) >= c.ttl {
		c.mu.Lock()
		// another writer may have refreshed the entry meanwhile
		if cur, still := c.entries[key]; still && cur.createdAt.Equal(entry.createdAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.quote, true
}

// Set stores quote under key with the current time.
func (c *PriceCache) Set(key string, quote *models.PriceQuote) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{quote: quote, createdAt: c.now()}
	c.mu.Unlock()
}

// Len returns the number of entries, expired or not.
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
