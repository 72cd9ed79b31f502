package resolver

import "sync"

// RedirectCache maps a source URL to its terminal URL. Entries are written
// once; later stores for the same source are ignored.
type RedirectCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewRedirectCache returns an empty cache.
func NewRedirectCache() *RedirectCache {
	return &RedirectCache{entries: make(map[string]string)}
}

// Load returns the cached terminal URL for source.
func (c *RedirectCache) Load(source string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	final, ok := c.entries[source]
	return final, ok
}

// Store records final for source unless an entry already exists. It
// reports whether the value was stored.
func (c *RedirectCache) Store(source, final string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[source]; exists {
		return false
	}
	c.entries[source] = final
	return true
}

// Len returns the number of cached entries.
func (c *RedirectCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Pairs returns a copy of all entries.
func (c *RedirectCache) Pairs() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}
