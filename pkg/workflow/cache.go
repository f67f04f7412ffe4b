package workflow

import "sync"

// Cache is an explicit bounded key/value store for memoized feedback
// composition. Eviction is oldest-inserted-first: overwriting a key
// refreshes its value but keeps its original insertion position.
//
// Cache is safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	cap   int
	order []string
	vals  map[string]string
}

// NewCache returns a cache bounded to capacity entries. Capacity below
// one is treated as one.
func NewCache(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{cap: capacity, vals: map[string]string{}}
}

// Get returns the cached value for key.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vals[key]
	return v, ok
}

// Put stores a value, evicting the oldest-inserted entry when full.
func (c *Cache) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.vals[key]; exists {
		c.vals[key] = value
		return
	}
	if len(c.order) >= c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.vals, oldest)
	}
	c.order = append(c.order, key)
	c.vals[key] = value
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}
