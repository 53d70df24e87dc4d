// Package cache provides the bounded read cache of a cask.
package cache

import (
	"bytes"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/dd0wney/cluso-cask/pkg/status"
)

// DefaultCapacity is the number of values kept when none is configured.
const DefaultCapacity = 16

const none int32 = -1

// node lives in the arena and links to its neighbours by index.
type node struct {
	hash  uint64
	key   []byte
	value []byte
	prev  int32
	next  int32
}

// Cache is a fixed-capacity LRU of values keyed by key. Nodes are
// preallocated; eviction reuses the node of the least recently used entry.
// Values are copied on the way in and on the way out.
type Cache struct {
	mu     sync.Mutex
	nodes  []node
	free   []int32
	lookup map[uint64]int32
	head   int32 // most recently used
	tail   int32 // least recently used

	// Statistics
	hits      int64
	misses    int64
	evictions int64
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Capacity  int
	Size      int
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64
}

// New returns a cache holding up to capacity values. A capacity of zero
// disables caching.
func New(capacity int) *Cache {
	if capacity < 0 {
		capacity = 0
	}
	c := &Cache{
		nodes:  make([]node, capacity),
		free:   make([]int32, capacity),
		lookup: make(map[uint64]int32, capacity),
		head:   none,
		tail:   none,
	}
	for i := range c.free {
		// pop order 0, 1, 2, ...
		c.free[i] = int32(capacity - 1 - i)
	}
	return c
}

func (c *Cache) detach(i int32) {
	n := &c.nodes[i]
	if n.prev != none {
		c.nodes[n.prev].next = n.next
	} else {
		c.head = n.next
	}
	if n.next != none {
		c.nodes[n.next].prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = none, none
}

func (c *Cache) attachFront(i int32) {
	n := &c.nodes[i]
	n.prev = none
	n.next = c.head
	if c.head != none {
		c.nodes[c.head].prev = i
	}
	c.head = i
	if c.tail == none {
		c.tail = i
	}
}

// find returns the node holding key, or none. A node whose key differs
// only shares the hash and does not count.
func (c *Cache) find(h uint64, key []byte) int32 {
	i, ok := c.lookup[h]
	if !ok || !bytes.Equal(c.nodes[i].key, key) {
		return none
	}
	return i
}

// Put stores a copy of value for key and marks it most recently used.
func (c *Cache) Put(key, value []byte) {
	h := xxhash.Sum64(key)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.nodes) == 0 {
		return
	}

	i, ok := c.lookup[h]
	if ok {
		// same key, or a colliding key whose slot is taken over
		c.detach(i)
	} else if n := len(c.free); n > 0 {
		i = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		i = c.tail
		c.detach(i)
		delete(c.lookup, c.nodes[i].hash)
		c.evictions++
	}

	nd := &c.nodes[i]
	nd.hash = h
	nd.key = append(nd.key[:0], key...)
	nd.value = append(nd.value[:0], value...)
	c.lookup[h] = i
	c.attachFront(i)
}

// Get returns a copy of the cached value of key, or NotFound.
func (c *Cache) Get(key []byte) ([]byte, error) {
	h := xxhash.Sum64(key)

	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.find(h, key)
	if i == none {
		c.misses++
		return nil, status.New(status.NotFound).Op("cache_get").Err()
	}
	c.hits++
	if c.head != i {
		c.detach(i)
		c.attachFront(i)
	}
	return append([]byte(nil), c.nodes[i].value...), nil
}

// Delete drops key from the cache, or returns NotFound.
func (c *Cache) Delete(key []byte) error {
	h := xxhash.Sum64(key)

	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.find(h, key)
	if i == none {
		return status.New(status.NotFound).Op("cache_delete").Err()
	}
	c.detach(i)
	delete(c.lookup, h)
	c.nodes[i].key = c.nodes[i].key[:0]
	c.nodes[i].value = c.nodes[i].value[:0]
	c.free = append(c.free, i)
	return nil
}

// Clear drops every entry and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	capacity := len(c.nodes)
	c.nodes = make([]node, capacity)
	c.free = c.free[:0]
	for i := capacity - 1; i >= 0; i-- {
		c.free = append(c.free, int32(i))
	}
	c.lookup = make(map[uint64]int32, capacity)
	c.head, c.tail = none, none
	c.hits, c.misses, c.evictions = 0, 0, 0
}

// Len returns the number of cached values.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lookup)
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Capacity:  len(c.nodes),
		Size:      len(c.lookup),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
