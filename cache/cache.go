package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/pricescout/models"
)

// entry holds a cached lookup with its creation timestamp.
type entry struct {
	lookup    *models.CompetitorLookup
	createdAt time.Time
}

// Cache keeps recent competitor lookups so a job that prices the same
// product twice searches the site once. It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	stop chan struct{}
	once sync.Once
}

// New creates a Cache holding at most maxEntries lookups for ttl each.
// A background goroutine evicts expired entries every 5 minutes until
// Close is called. maxEntries <= 0 disables caching.
func New(maxEntries int, ttl time.Duration) *Cache {
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	if maxEntries > 0 {
		go c.cleanupLoop(5 * time.Minute)
	}
	return c
}

// Key generates a cache key from a product title and category id. Titles
// differing only in case or surrounding space share a key.
func Key(title, categoryID string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(title))))
	h.Write([]byte("|"))
	h.Write([]byte(strings.TrimSpace(categoryID)))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached lookup younger than the TTL.
func (c *Cache) Get(key string) (*models.CompetitorLookup, bool) {
	if c == nil || c.maxEntries <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || c.expired(e) {
		return nil, false
	}
	return e.lookup, true
}

// Set stores a lookup. Only successful lookups are worth caching; callers
// decide. If the cache is at capacity, a random entry is evicted.
func (c *Cache) Set(key string, lookup *models.CompetitorLookup) {
	if c == nil || c.maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// Map iteration order is random in Go.
	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		lookup:    lookup,
		createdAt: c.now(),
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache) expired(e *entry) bool {
	return c.ttl > 0 && c.now().Sub(e.createdAt) > c.ttl
}

// evictExpired drops every entry older than the TTL.
func (c *Cache) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if c.expired(e) {
			delete(c.store, k)
		}
	}
}

func (c *Cache) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-c.stop:
			return
		}
	}
}
