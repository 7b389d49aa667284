// Package heightcache stores approximate ground heights by horizontal
// position.
//
// The cache is a sorted list of keys with a parallel list of heights. Lookups
// are approximate: they return the height of the closest sorted neighbor when
// it lies within Threshold. The cache is bounded; when it grows past its
// capacity, the entries farthest from an anchor position are evicted first.
package heightcache

import (
	"cmp"
	"math"
	"slices"
	"sync"
)

const (
	// MaxDistance is the reference view distance the default capacity is
	// derived from.
	MaxDistance = 80

	// DefaultCapacity is the default number of entries a cache holds.
	DefaultCapacity = MaxDistance * MaxDistance * 400

	// Threshold is the maximum distance between a requested key and the
	// stored key answering it.
	Threshold = 3.0
)

// Unknown is the height stored for positions where no ground was found.
var Unknown = math.NaN()

// Cache is a bounded, sorted key to height store, safe for concurrent use.
type Cache struct {
	capacity int

	mutex  sync.RWMutex
	keys   []Key
	values []float64
}

// New creates a cache holding at most capacity entries after each eviction
// pass. A capacity lower than 1 uses DefaultCapacity.
func New(capacity int) *Cache {
	if capacity < 1 {
		capacity = DefaultCapacity
	}

	return &Cache{
		capacity: capacity,
	}
}

func (c *Cache) Capacity() int {
	return c.capacity
}

func (c *Cache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.keys)
}

// Keys returns a copy of the sorted keys.
func (c *Cache) Keys() []Key {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return slices.Clone(c.keys)
}

// Search returns the index where key is, or would be inserted, in the sorted
// keys, and whether it is present.
func (c *Cache) Search(key Key) (int, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.search(key)
}

func (c *Cache) search(key Key) (int, bool) {
	return slices.BinarySearchFunc(c.keys, key, Compare)
}

// Get returns the height stored for the closest sorted neighbor of key, probed
// at the insertion index of key (wrapping around) and right before it. It reports
// false when the cache is empty or when the neighbor is farther than
// Threshold. The returned height may be Unknown.
func (c *Cache) Get(key Key) (float64, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if len(c.keys) == 0 {
		instrumentLookup(false)
		return 0, false
	}

	i, _ := c.search(key)
	i %= len(c.keys)

	// The key sorted right before the insertion index can be closer.
	if prev := (i - 1 + len(c.keys)) % len(c.keys); c.keys[prev].Distance(key) < c.keys[i].Distance(key) {
		i = prev
	}

	if c.keys[i].Distance(key) > Threshold {
		instrumentLookup(false)
		return 0, false
	}

	instrumentLookup(true)
	return c.values[i], true
}

// Put sets the height of key.
func (c *Cache) Put(key Key, height float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	i, found := c.search(key)
	if found {
		c.values[i] = height
		return
	}

	c.keys = slices.Insert(c.keys, i, key)
	c.values = slices.Insert(c.values, i, height)
	instrumentEntries(len(c.keys))
}

// EvictToCapacity removes the entries farthest from anchor until the cache
// holds no more than its capacity. Among equally distant entries, the ones
// with the lowest sorted index go first. It returns the number of removed
// entries.
func (c *Cache) EvictToCapacity(anchor Key) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	excess := len(c.keys) - c.capacity
	if excess <= 0 {
		return 0
	}

	type candidate struct {
		index    int
		distance float64
	}

	candidates := make([]candidate, len(c.keys))
	for i, k := range c.keys {
		candidates[i] = candidate{index: i, distance: k.Distance(anchor)}
	}

	slices.SortFunc(candidates, func(a, b candidate) int {
		if d := cmp.Compare(b.distance, a.distance); d != 0 {
			return d
		}
		return cmp.Compare(a.index, b.index)
	})

	evicted := make([]bool, len(c.keys))
	for _, cd := range candidates[:excess] {
		evicted[cd.index] = true
	}

	n := 0
	for i := range c.keys {
		if evicted[i] {
			continue
		}
		c.keys[n] = c.keys[i]
		c.values[n] = c.values[i]
		n++
	}

	c.keys = slices.Delete(c.keys, n, len(c.keys))
	c.values = slices.Delete(c.values, n, len(c.values))

	instrumentEviction(excess)
	instrumentEntries(len(c.keys))
	return excess
}
