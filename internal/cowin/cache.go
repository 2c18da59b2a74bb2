package cowin

import (
	"container/list"
	"sync"
	"time"
)

// ttlCache is a small TTL cache with LRU eviction beyond a fixed capacity.
// Safe for concurrent use; the broadcast cycle shares one instance across
// segment workers.
type ttlCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	max   int
	ll    *list.List // front = most recently used
	items map[string]*list.Element

	now func() time.Time
}

type cacheEntry struct {
	key     string
	centers []RawCenter
	expires time.Time
}

func newTTLCache(ttl time.Duration, max int) *ttlCache {
	if max <= 0 {
		max = 1
	}
	return &ttlCache{
		ttl:   ttl,
		max:   max,
		ll:    list.New(),
		items: make(map[string]*list.Element),
		now:   time.Now,
	}
}

func (c *ttlCache) Get(key string) ([]RawCenter, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*cacheEntry)
	if c.now().After(ent.expires) {
		c.removeLocked(el)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return ent.centers, true
}

func (c *ttlCache) Put(key string, centers []RawCenter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		ent := el.Value.(*cacheEntry)
		ent.centers = centers
		ent.expires = expires
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cacheEntry{key: key, centers: centers, expires: expires})
	c.items[key] = el

	for c.ll.Len() > c.max {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}
}

// Evict drops the entry for key, if any. Used after upstream failures so a
// stale success is never served for a key that just failed.
func (c *ttlCache) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
}

func (c *ttlCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *ttlCache) removeLocked(el *list.Element) {
	ent := el.Value.(*cacheEntry)
	c.ll.Remove(el)
	delete(c.items, ent.key)
}
