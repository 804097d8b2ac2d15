package provider

import (
	"container/list"
	"sync"
	"time"
)

// CacheStats represents cache performance metrics
type CacheStats struct {
	Size        int           `json:"size"`
	MaxSize     int           `json:"max_size"`
	Hits        int64         `json:"hits"`
	Misses      int64         `json:"misses"`
	Evictions   int64         `json:"evictions"`
	TTLExpiries int64         `json:"ttl_expiries"`
	HitRatio    float64       `json:"hit_ratio"`
	TTL         time.Duration `json:"ttl"`
}

type cacheEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time // zero means no expiry
	element   *list.Element
}

// Cache is a size-bounded LRU cache with per-entry expiry, safe for concurrent use.
// It backs gateway instances per tenant, access tokens and signing certificates.
type Cache[V any] struct {
	entries map[string]*cacheEntry[V]
	order   *list.List // most recently used at front
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex

	hits        int64
	misses      int64
	evictions   int64
	ttlExpiries int64
}

// NewCache creates a cache holding at most maxSize entries. ttl is the default
// lifetime used by Set; zero disables expiry for Set.
func NewCache[V any](maxSize int, ttl time.Duration) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Cache[V]{
		entries: make(map[string]*cacheEntry[V]),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the live value stored under key
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}

	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.removeLocked(entry)
		c.ttlExpiries++
		c.misses++
		return zero, false
	}

	c.order.MoveToFront(entry.element)
	c.hits++
	return entry.value, true
}

// Set stores value under key with the default ttl
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}
	c.setLocked(key, value, expiresAt)
}

// SetWithTTL stores value under key for ttl. A non-positive ttl stores nothing
// and drops any existing entry.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		if entry, ok := c.entries[key]; ok {
			c.removeLocked(entry)
		}
		return
	}
	c.setLocked(key, value, c.now().Add(ttl))
}

func (c *Cache[V]) setLocked(key string, value V, expiresAt time.Time) {
	if entry, ok := c.entries[key]; ok {
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(entry.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		if back := c.order.Back(); back != nil {
			c.removeLocked(back.Value.(*cacheEntry[V]))
			c.evictions++
		}
	}

	entry := &cacheEntry[V]{key: key, value: value, expiresAt: expiresAt}
	entry.element = c.order.PushFront(entry)
	c.entries[key] = entry
}

// Delete removes key from the cache
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		c.removeLocked(entry)
	}
}

// DeleteFunc removes every entry whose key matches
func (c *Cache[V]) DeleteFunc(match func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if match(key) {
			c.removeLocked(entry)
			removed++
		}
	}
	return removed
}

// Clear removes all entries
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry[V])
	c.order.Init()
}

// Size returns the number of stored entries, expired ones included
func (c *Cache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cleanup drops expired entries
func (c *Cache[V]) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, entry := range c.entries {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			c.removeLocked(entry)
			c.ttlExpiries++
		}
	}
}

// Stats returns cache statistics
func (c *Cache[V]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRatio := 0.0
	if total := c.hits + c.misses; total > 0 {
		hitRatio = float64(c.hits) / float64(total)
	}

	return CacheStats{
		Size:        len(c.entries),
		MaxSize:     c.maxSize,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		TTLExpiries: c.ttlExpiries,
		HitRatio:    hitRatio,
		TTL:         c.ttl,
	}
}

// removeLocked must be called with mu held
func (c *Cache[V]) removeLocked(entry *cacheEntry[V]) {
	delete(c.entries, entry.key)
	c.order.Remove(entry.element)
}
