package services

import "sync"

// SnapshotCache memoizes one derived value per snapshot key. A different key
// or an explicit Invalidate forces the next Get to rebuild.
type SnapshotCache[K comparable, T any] struct {
	mu    sync.Mutex
	key   K
	value T
	valid bool
}

// Get returns the cached value for key, building it if needed. A failed
// build leaves the cache empty.
func (c *SnapshotCache[K, T]) Get(key K, build func() (T, error)) (value T, reused bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.key == key {
		return c.value, true, nil
	}

	value, err = build()
	if err != nil {
		c.invalidateLocked()
		var zero T
		return zero, false, err
	}
	c.key = key
	c.value = value
	c.valid = true
	return value, false, nil
}

// Peek returns the cached value without building.
func (c *SnapshotCache[K, T]) Peek() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.valid
}

// Invalidate drops the cached value.
func (c *SnapshotCache[K, T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked()
}

func (c *SnapshotCache[K, T]) invalidateLocked() {
	var zeroK K
	var zeroT T
	c.key = zeroK
	c.value = zeroT
	c.valid = false
}
