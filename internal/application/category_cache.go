package application

import (
	"sync"
	"time"
)

// categoryCache keeps the latest category summary for a short time so that
// catalog browsing does not aggregate the books table on every request.
// Catalog writes invalidate it.
type categoryCache struct {
	mu        sync.RWMutex
	now       func() time.Time
	ttl       time.Duration
	entries   []Category
	expiresAt time.Time
	valid     bool
}

func newCategoryCache(ttl time.Duration, now func() time.Time) *categoryCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &categoryCache{now: now, ttl: ttl}
}

func (c *categoryCache) Get() ([]Category, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entries, expiresAt, valid := c.entries, c.expiresAt, c.valid
	c.mu.RUnlock()
	if !valid {
		return nil, false
	}
	if c.now().After(expiresAt) {
		c.Invalidate()
		return nil, false
	}
	return cloneCategories(entries), true
}

func (c *categoryCache) Store(categories []Category) {
	if c == nil {
		return
	}
	cloned := cloneCategories(categories)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	c.entries = cloned
	c.expiresAt = expiry
	c.valid = true
	c.mu.Unlock()
}

func (c *categoryCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = nil
	c.valid = false
	c.mu.Unlock()
}

func cloneCategories(categories []Category) []Category {
	if len(categories) == 0 {
		return nil
	}
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}
