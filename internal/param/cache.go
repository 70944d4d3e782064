package param

import "sync"

type cacheKey struct {
	track  int
	device int
}

// Cache holds discovered device info keyed by (track, device).
//
// Entries never expire on their own. Device indices shift whenever a
// device is loaded or deleted, so staleness is an event, not a time:
// the controller invalidates explicitly on every mutation.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]*DeviceInfo
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]*DeviceInfo)}
}

// Get returns the cached info for a device slot.
func (c *Cache) Get(track, device int) (*DeviceInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.entries[cacheKey{track, device}]
	return info, ok
}

// Put stores info under its own track and device indices.
func (c *Cache) Put(info *DeviceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{info.Track, info.Device}] = info
}

// Invalidate drops one device slot.
func (c *Cache) Invalidate(track, device int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{track, device})
}

// InvalidateTrack drops every entry on a track. Used after loads and
// deletes, which shift the indices of all following devices.
func (c *Cache) InvalidateTrack(track int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.track == track {
			delete(c.entries, key)
		}
	}
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]*DeviceInfo)
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
