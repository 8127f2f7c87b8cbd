// Package reqcache implements the wallet's at-most-once request capture.
// Each mutating action keeps a bounded LRU cache keyed by caller-supplied
// idempotency keys; a key that maps to a completed result is answered
// without re-running the producer, and concurrent callers on the same key
// share a single in-flight execution. Results are only installed after the
// producer (including broadcast) completes, so a replayed request can never
// re-spend coins.
package reqcache

import (
	"errors"

	"github.com/lightninglabs/neutrino/cache"
	"github.com/lightninglabs/neutrino/cache/lru"
	"golang.org/x/sync/singleflight"
)

// DefaultCapacity bounds each per-action cache.
const DefaultCapacity = 1024

// ErrUnknownCache is returned by the manager for an unregistered cache
// name.
var ErrUnknownCache = errors.New("unknown request cache")

// record wraps a result so it satisfies the lru cache's value interface.
// Entries are counted, not sized, so every record reports a unit size.
type record[R any] struct {
	result R
}

// Size returns the unit cost of a cache entry.
func (r *record[R]) Size() (uint64, error) {
	return 1, nil
}

// Cache is a single action's idempotency cache.
type Cache[R any] struct {
	name    string
	entries *lru.Cache[string, *record[R]]
	group   singleflight.Group
}

// New builds a cache for the named action with the given entry capacity.
func New[R any](name string, capacity uint64) *Cache[R] {
	return &Cache[R]{
		name:    name,
		entries: lru.NewCache[string, *record[R]](capacity),
	}
}

// Name returns the action name the cache was registered under.
func (c *Cache[R]) Name() string {
	return c.name
}

// WithCache runs producer at most once for the key. The boolean reports
// whether the result came from the cache (or from sharing another caller's
// in-flight execution) rather than from running producer ourselves. An
// empty key disables caching entirely.
func (c *Cache[R]) WithCache(key string,
	producer func() (R, error)) (R, bool, error) {

	if key == "" {
		result, err := producer()

		return result, false, err
	}

	if rec, err := c.entries.Get(key); err == nil {
		return rec.result, true, nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		// Another leader may have completed between our Get and Do.
		if rec, err := c.entries.Get(key); err == nil {
			return rec.result, nil
		}

		result, err := producer()
		if err != nil {
			// Failures are never cached; the next caller retries.
			return nil, err
		}

		if _, err := c.entries.Put(
			key, &record[R]{result: result},
		); err != nil {
			return nil, err
		}

		return result, nil
	})
	if err != nil {
		var zero R

		return zero, false, err
	}

	return v.(R), shared, nil
}

// Lookup returns the completed result for the key, if any.
func (c *Cache[R]) Lookup(key string) (R, bool) {
	rec, err := c.entries.Get(key)
	if err != nil {
		var zero R

		return zero, false
	}

	return rec.result, true
}

// Install stores a completed result for the key, replacing any previous
// entry. Batch paths use it to record per-name results after a shared
// broadcast succeeds.
func (c *Cache[R]) Install(key string, result R) {
	if key == "" {
		return
	}

	_, _ = c.entries.Put(key, &record[R]{result: result})
}

// Remove drops a single entry.
func (c *Cache[R]) Remove(key string) {
	c.entries.Delete(key)
}

// Purge drops every entry.
func (c *Cache[R]) Purge() {
	var keys []string
	c.entries.Range(func(key string, _ *record[R]) bool {
		keys = append(keys, key)

		return true
	})
	for _, key := range keys {
		c.entries.Delete(key)
	}
}

// Len returns the number of completed entries.
func (c *Cache[R]) Len() int {
	return c.entries.Len()
}

// A compile-time check that records satisfy the cache value contract.
var _ cache.Value = (*record[int])(nil)
