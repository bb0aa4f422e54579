// Package cache caches JSON responses of the override reporting endpoints
// (statistics, expiring, monitoring-overdue) between writes.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key         string
	body        []byte
	contentType string
	expiresAt   time.Time
}

// LRUCache is a thread-safe response cache with TTL and least-recently-used
// eviction. Expired entries are dropped lazily on Get.
type LRUCache struct {
	mu      sync.Mutex
	order   *list.List
	items   map[string]*list.Element
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewLRUCache creates a cache holding at most maxSize entries for ttl each.
func NewLRUCache(maxSize int, ttl time.Duration) *LRUCache {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LRUCache{
		order:   list.New(),
		items:   make(map[string]*list.Element, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached body and content type for key.
func (c *LRUCache) Get(key string) (body []byte, contentType string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, "", false
	}
	e := el.Value.(*entry)
	if c.now().After(e.expiresAt) {
		c.remove(el)
		return nil, "", false
	}
	c.order.MoveToFront(el)
	return e.body, e.contentType, true
}

// Set stores body under key, evicting the least recently used entry when full.
func (c *LRUCache) Set(key string, body []byte, contentType string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry{key: key, body: body, contentType: contentType, expiresAt: c.now().Add(c.ttl)}
	if el, ok := c.items[key]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.maxSize {
		c.remove(c.order.Back())
	}
	c.items[key] = c.order.PushFront(e)
}

// InvalidateAll removes every entry.
func (c *LRUCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element, c.maxSize)
}

// Size returns the number of entries, including expired ones not yet dropped.
func (c *LRUCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// remove must be called with c.mu held.
func (c *LRUCache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}
