package index

import (
	"container/list"
	"sync"

	"github.com/viant/kvvs/storage"
)

// Cache is a bounded digest -> pointer map that evicts in insertion order.
//
// Updating a key already present keeps its original position; only keys
// inserted after being absent move to the back. When the item count exceeds
// max, the batch oldest-inserted entries are dropped in one pass.
type Cache struct {
	max       int
	batch     int
	items     map[string]*list.Element
	order     *list.List // front is the oldest insertion
	evictions uint64
	mu        sync.Mutex
}

type cacheEntry struct {
	digest  string
	pointer *storage.Pointer
}

// NewCache creates a cache holding at most max entries. step below 1 is a
// fraction of max evicted per pass, otherwise an absolute entry count.
func NewCache(max int, step float64) *Cache {
	if max <= 0 {
		max = DefaultCacheMax
	}
	return &Cache{
		max:   max,
		batch: batchSize(max, step),
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

func batchSize(max int, step float64) int {
	if step <= 0 {
		step = DefaultCacheStep
	}
	var n int
	if step < 1 {
		n = int(float64(max) * step)
	} else {
		n = int(step)
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Get returns the cached pointer for digest.
func (c *Cache) Get(digest string) (*storage.Pointer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[digest]; ok {
		return elem.Value.(*cacheEntry).pointer, true
	}
	return nil, false
}

// Put stores pointer under digest and returns how many entries were evicted.
func (c *Cache) Put(digest string, pointer *storage.Pointer) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[digest]; ok {
		elem.Value.(*cacheEntry).pointer = pointer
		return 0
	}
	c.items[digest] = c.order.PushBack(&cacheEntry{digest: digest, pointer: pointer})
	if len(c.items) <= c.max {
		return 0
	}
	// keep the entry just inserted
	n := c.batch
	if n > len(c.items)-1 {
		n = len(c.items) - 1
	}
	for i := 0; i < n; i++ {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).digest)
	}
	c.evictions += uint64(n)
	return n
}

// Remove drops digest from the cache, reporting whether it was present.
func (c *Cache) Remove(digest string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[digest]
	if !ok {
		return false
	}
	c.order.Remove(elem)
	delete(c.items, digest)
	return true
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns cached digests, oldest insertion first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.items))
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*cacheEntry).digest)
	}
	return keys
}

// Evictions returns the total number of evicted entries.
func (c *Cache) Evictions() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictions
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}
