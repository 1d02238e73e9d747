// Package ratelimit provides the attempt counter used to bound how often an
// owner can trigger expensive generation work. The store is injected so a
// multi-process deployment can swap the in-memory counter for a shared
// Redis-backed one without touching callers.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Counter counts hits per key inside a TTL window.
type Counter interface {
	// Hit increments key and returns the count observed in the current
	// window. The first hit of a window starts its TTL.
	Hit(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Reset discards the window for key.
	Reset(ctx context.Context, key string) error
}

type window struct {
	count     int64
	expiresAt time.Time
}

// MemoryCounter is a process-local Counter. Expired windows are evicted on
// access and swept opportunistically once the map grows.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewMemoryCounter ...
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		windows: map[string]*window{},
		now:     time.Now,
	}
}

// Hit ...
func (c *MemoryCounter) Hit(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if !ok || now.After(w.expiresAt) {
		w = &window{expiresAt: now.Add(ttl)}
		c.windows[key] = w
	}
	w.count++

	if len(c.windows) > 1024 {
		c.sweepLocked(now)
	}
	return w.count, nil
}

// Reset ...
func (c *MemoryCounter) Reset(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.windows, key)
	return nil
}

func (c *MemoryCounter) sweepLocked(now time.Time) {
	for key, w := range c.windows {
		if now.After(w.expiresAt) {
			delete(c.windows, key)
		}
	}
}
