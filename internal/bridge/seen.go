package bridge

import "sync"

// SeenCache is a bounded recently-seen-id cache. The transports may deliver
// the same envelope once per channel, so consumers mark every processed id
// and drop repeats. Without it a status report arriving on two channels
// would be applied twice and create duplicate analytics records.
type SeenCache struct {
	mu       sync.Mutex
	capacity int
	present  map[string]struct{}
	order    []string
	next     int
}

// DefaultSeenCapacity bounds the cache well above the number of envelopes
// in flight at any one time.
const DefaultSeenCapacity = 512

// NewSeenCache creates a cache holding up to capacity ids; capacity <= 0
// falls back to DefaultSeenCapacity.
func NewSeenCache(capacity int) *SeenCache {
	if capacity <= 0 {
		capacity = DefaultSeenCapacity
	}
	return &SeenCache{
		capacity: capacity,
		present:  make(map[string]struct{}, capacity),
	}
}

// Seen marks id as processed and reports whether it had been seen before.
// The oldest id is evicted once the cache is full.
func (c *SeenCache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.present[id]; ok {
		return true
	}

	if len(c.order) < c.capacity {
		c.order = append(c.order, id)
	} else {
		delete(c.present, c.order[c.next])
		c.order[c.next] = id
		c.next = (c.next + 1) % c.capacity
	}
	c.present[id] = struct{}{}
	return false
}

// Len returns the number of ids currently tracked.
func (c *SeenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.present)
}
