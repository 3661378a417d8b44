package confirm

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryCache is the in-process Cache used when no Redis URL is configured.
// A single mutex serialises every operation, so get-and-delete is atomic.
// Expired entries are never returned; Run purges them in the background.
type MemoryCache struct {
	namespace string
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryCache returns an empty cache scoped to namespace.
func NewMemoryCache(namespace string) *MemoryCache {
	return &MemoryCache{
		namespace: namespace,
		now:       time.Now,
		entries:   make(map[string]memoryEntry),
	}
}

func (c *MemoryCache) Store(_ context.Context, id string, payload []byte, ttl time.Duration) error {
	buf := append([]byte(nil), payload...)
	c.mu.Lock()
	c.entries[cacheKey(c.namespace, id)] = memoryEntry{payload: buf, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Retrieve(_ context.Context, id string) ([]byte, bool, error) {
	key := cacheKey(c.namespace, id)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	delete(c.entries, key)
	if !c.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return e.payload, true, nil
}

func (c *MemoryCache) Exists(_ context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(c.namespace, id)]
	return ok && c.now().Before(e.expiresAt), nil
}

// Len counts stored entries, including expired ones not yet purged.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops expired entries and returns how many were removed.
func (c *MemoryCache) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Run purges expired entries every interval until ctx is done.
func (c *MemoryCache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Purge()
		}
	}
}
