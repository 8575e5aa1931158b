package service

// seenCache remembers the last cap event ids so overlapping polls do not
// republish the same events. Purely an efficiency measure: correctness
// rests on the aggregator's idempotent upsert, so eviction losing an id
// early costs one redundant message, nothing more.
//
// Not safe for concurrent use; the poll loop is the single caller
type seenCache struct {
	cap   int
	index map[string]struct{}
	ring  []string
	next  int
}

func newSeenCache(cap int) *seenCache {
	if cap <= 0 {
		cap = 4096
	}
	return &seenCache{
		cap:   cap,
		index: make(map[string]struct{}, cap),
		ring:  make([]string, 0, cap),
	}
}

// SeenAndRecord reports whether id was already recorded and records it if
// not, evicting the oldest entry once the cache is full
func (c *seenCache) SeenAndRecord(id string) bool {
	if _, ok := c.index[id]; ok {
		return true
	}
	if len(c.ring) < c.cap {
		c.ring = append(c.ring, id)
	} else {
		delete(c.index, c.ring[c.next])
		c.ring[c.next] = id
		c.next = (c.next + 1) % c.cap
	}
	c.index[id] = struct{}{}
	return false
}

// Len reports how many ids are currently cached
func (c *seenCache) Len() int { return len(c.index) }
