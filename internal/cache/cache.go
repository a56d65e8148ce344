package cache

import (
	"sync"
	"time"
)

// Entry is a cached embedding vector keyed by the hash of its normalized text
type Entry struct {
	Key       string
	Vector    []float32
	CreatedAt time.Time
}

// Memory is the in-process embedding tier. Entries are write-once: a Put for
// a key that is already present keeps the original entry.
type Memory struct {
	items map[string]*Entry
	mutex sync.RWMutex
}

// New creates a new memory cache instance
func New() *Memory {
	return &Memory{
		items: make(map[string]*Entry),
	}
}

// Get retrieves an entry from the cache
func (c *Memory) Get(key string) (Entry, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, exists := c.items[key]
	if !exists {
		return Entry{}, false
	}
	return *item, true
}

// Put stores an entry unless one already exists for its key.
// It reports whether the entry was stored.
func (c *Memory) Put(entry Entry) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.items[entry.Key]; exists {
		return false
	}
	vec := make([]float32, len(entry.Vector))
	copy(vec, entry.Vector)
	c.items[entry.Key] = &Entry{Key: entry.Key, Vector: vec, CreatedAt: entry.CreatedAt}
	return true
}

// Delete removes an entry from the cache
func (c *Memory) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.items, key)
}

// Clear removes all entries from the cache
func (c *Memory) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.items = make(map[string]*Entry)
}

// Len returns the number of cached entries
func (c *Memory) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.items)
}

// Prune removes entries created before cutoff and returns how many were removed
func (c *Memory) Prune(cutoff time.Time) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	removed := 0
	for key, item := range c.items {
		if item.CreatedAt.Before(cutoff) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}
