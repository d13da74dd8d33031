// Package fetcher drives the periodic fetch, persist and evaluate pipeline.
package fetcher

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"trade-alert/internal/models"
)

// CacheEntry is the last price seen for a symbol.
type CacheEntry struct {
	Price     decimal.Decimal
	Volume    int64
	Timestamp time.Time
}

// PriceCache holds the last fetch per symbol. Entries are never evicted;
// staleness is judged against the TTL at read time.
type PriceCache struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewPriceCache creates an empty cache.
func NewPriceCache(ttl time.Duration) *PriceCache {
	return &PriceCache{
		entries: make(map[string]CacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the entry for symbol regardless of age.
func (c *PriceCache) Get(symbol string) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[symbol]
	return e, ok
}

// IsFresh reports whether symbol has an entry younger than the TTL.
func (c *PriceCache) IsFresh(symbol string) bool {
	e, ok := c.Get(symbol)
	if !ok {
		return false
	}
	return c.now().Sub(e.Timestamp) < c.ttl
}

// Put records a sample as the latest price for its symbol.
func (c *PriceCache) Put(s models.PriceSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[s.Symbol] = CacheEntry{
		Price:     s.Price,
		Volume:    s.Volume,
		Timestamp: s.Timestamp,
	}
}

// Len returns the number of cached symbols.
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
