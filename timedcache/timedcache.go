// Package timedcache provides a TTL cache that collapses concurrent
// loads of the same key into a single upstream call.
package timedcache

import (
	"context"
	"sync"
	"time"
)

const DefaultFailureRetry = 30 * time.Second

type entry[V any] struct {
	value     V
	hasValue  bool
	expiresAt time.Time
	inflight  *flight[V]
}

type flight[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// Cache maps keys to values loaded on demand. A value is served as
// long as its TTL has not elapsed. On a miss, exactly one loader runs
// per key; every concurrent caller for that key awaits the same load.
// A failed load surfaces its error to the waiting callers but leaves
// any previous value in place, re-served to subsequent callers for
// FailureRetry before the next attempt.
type Cache[K comparable, V any] struct {
	// MaxEntries bounds the number of cached keys; 0 means
	// unbounded. Eviction prefers expired entries, then
	// oldest-inserted.
	MaxEntries int

	// FailureRetry is how long a stale value keeps being served
	// after a failed refresh.
	FailureRetry time.Duration

	TimeNow func() time.Time

	mu      sync.Mutex
	entries map[K]*entry[V]
	order   []K // insertion order, for eviction
}

func New[K comparable, V any](maxEntries int) *Cache[K, V] {
	return &Cache[K, V]{
		MaxEntries:   maxEntries,
		FailureRetry: DefaultFailureRetry,
		TimeNow:      time.Now,
		entries:      map[K]*entry[V]{},
	}
}

// Get returns the cached value for key, or runs load to produce one.
// Only the check-or-create step holds the lock; the load itself runs
// outside it.
func (c *Cache[K, V]) Get(ctx context.Context, key K, ttl time.Duration, load func(ctx context.Context) (V, error)) (V, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry[V]{}
		c.entries[key] = e
		c.order = append(c.order, key)
	}

	if e.hasValue && c.TimeNow().Before(e.expiresAt) {
		v := e.value
		c.mu.Unlock()
		return v, nil
	}

	if e.inflight != nil {
		f := e.inflight
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.value, f.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}

	f := &flight[V]{done: make(chan struct{})}
	e.inflight = f
	c.mu.Unlock()

	value, err := load(ctx)

	c.mu.Lock()
	if err == nil {
		e.value = value
		e.hasValue = true
		e.expiresAt = c.TimeNow().Add(ttl)
	} else if e.hasValue {
		// Keep serving the stale value for a while before the
		// next upstream attempt.
		e.expiresAt = c.TimeNow().Add(c.FailureRetry)
	}
	e.inflight = nil
	c.evictLocked()
	c.mu.Unlock()

	f.value = value
	f.err = err
	close(f.done)

	return value, err
}

// Stale returns the last stored value for key even if expired.
func (c *Cache[K, V]) Stale(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.hasValue {
		return e.value, true
	}
	var zero V
	return zero, false
}

// Len reports the number of cached keys.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[K, V]) evictLocked() {
	if c.MaxEntries <= 0 || len(c.entries) <= c.MaxEntries {
		return
	}

	// First pass: drop expired entries, oldest first.
	now := c.TimeNow()
	kept := c.order[:0]
	for _, key := range c.order {
		e := c.entries[key]
		if len(c.entries) > c.MaxEntries && e.inflight == nil && !now.Before(e.expiresAt) {
			delete(c.entries, key)
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept

	// Then drop oldest-inserted until within bounds.
	for len(c.entries) > c.MaxEntries && len(c.order) > 0 {
		key := c.order[0]
		if e := c.entries[key]; e.inflight != nil {
			break
		}
		c.order = c.order[1:]
		delete(c.entries, key)
	}
}
