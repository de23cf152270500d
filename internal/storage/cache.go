package storage

import (
	"encoding/json"
	"sync"
)

// Cache is a process-lifetime read cache over the key-value store. Entries
// never expire; writers invalidate by key on commit. Instances sharing one
// underlying store do not share cache state, so a second instance can read
// stale values until its own next invalidation — a known staleness window
// under the single-writer-dominant usage pattern.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]json.RawMessage
}

// NewCache creates an empty read cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]json.RawMessage)}
}

// Get returns the cached value for key, if present.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return cloneRaw(v), true
}

// Set stores a value for key.
func (c *Cache) Set(key string, value json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cloneRaw(value)
}

// Has reports whether key is cached.
func (c *Cache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// Delete drops a single key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]json.RawMessage)
}

// InvalidateKeys drops the given keys.
func (c *Cache) InvalidateKeys(keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
