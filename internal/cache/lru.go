package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry[V any] struct {
	key     string
	value   V
	size    int64
	expires time.Time
}

// LRU is a thread-safe least-recently-used cache bounded by item count and
// total size, with an optional time to live.
type LRU[V any] struct {
	mu           sync.Mutex
	maxItems     int
	maxSizeBytes int64
	ttl          time.Duration
	now          func() time.Time
	currentSize  int64
	items        map[string]*list.Element
	order        *list.List

	hits        int64
	misses      int64
	evictions   int64
	expirations int64
}

// NewLRU creates a cache. A zero maxItems, maxSizeBytes or ttl means no
// limit on that dimension.
func NewLRU[V any](maxItems int, maxSizeBytes int64, ttl time.Duration) *LRU[V] {
	return &LRU[V]{
		maxItems:     maxItems,
		maxSizeBytes: maxSizeBytes,
		ttl:          ttl,
		now:          time.Now,
		items:        make(map[string]*list.Element),
		order:        list.New(),
	}
}

// Get returns the value for key and marks it recently used. Expired entries
// are removed and reported as misses.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}

	e := elem.Value.(*entry[V])
	if !e.expires.IsZero() && c.now().After(e.expires) {
		c.remove(elem)
		c.expirations++
		c.misses++
		return zero, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return e.value, true
}

// Put adds or replaces the value for key. size is the approximate size of
// the value in bytes.
func (c *LRU[V]) Put(key string, value V, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	}

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[V])
		c.currentSize += size - e.size
		e.value, e.size, e.expires = value, size, expires
		c.order.MoveToFront(elem)
	} else {
		c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value, size: size, expires: expires})
		c.currentSize += size
	}

	c.evict()
}

// evict drops least recently used entries until the cache fits. The newest
// entry is always kept, even when it alone exceeds the size limit.
func (c *LRU[V]) evict() {
	for c.order.Len() > 1 {
		overItems := c.maxItems > 0 && c.order.Len() > c.maxItems
		overSize := c.maxSizeBytes > 0 && c.currentSize > c.maxSizeBytes
		if !overItems && !overSize {
			return
		}
		c.remove(c.order.Back())
		c.evictions++
	}
}

func (c *LRU[V]) remove(elem *list.Element) {
	c.order.Remove(elem)
	e := elem.Value.(*entry[V])
	delete(c.items, e.key)
	c.currentSize -= e.size
}

// Delete removes key and reports whether it was present.
func (c *LRU[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.remove(elem)
		return true
	}
	return false
}

// Clear removes all entries. Counters are kept.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.currentSize = 0
}

// Len returns the number of entries, including expired ones not yet
// collected.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Size returns the total size of all entries.
func (c *LRU[V]) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Items       int
	Size        int64
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
	HitRate     float64
}

func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRate := 0.0
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return Stats{
		Items:       c.order.Len(),
		Size:        c.currentSize,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		HitRate:     hitRate,
	}
}
