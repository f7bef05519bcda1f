package lru

import (
	"strconv"

	"golang.org/x/sync/singleflight"
)

// Loader implements the single-flight load protocol of spec §4.2 on top of
// a Cache: at most one concurrent deserialization per key, with the
// eviction-races-with-completion case (spec §4.2 step 4) handled
// automatically by singleflight.Group's own "forget the call once it
// completes" behavior — a key evicted between one Do call finishing and
// the next caller arriving simply causes the fast-path registry check
// inside the next Do to miss and reload, rather than returning stale data.
type Loader[V any] struct {
	cache *Cache[V]
	group singleflight.Group
}

// NewLoader wraps cache with single-flight load semantics.
func NewLoader[V any](cache *Cache[V]) *Loader[V] {
	return &Loader[V]{cache: cache}
}

// Cache returns the underlying registry, e.g. for direct Get/Insert use by
// callers that bypass single-flight (force-load paths).
func (l *Loader[V]) Cache() *Cache[V] {
	return l.cache
}

// Load returns the cached value for k, invoking deserialize at most once
// across all concurrent callers racing on the same key (spec §4.2).
func (l *Loader[V]) Load(k uint64, deserialize func() (V, error)) (V, error) {
	if v, ok := l.cache.Get(k); ok {
		return v, nil
	}

	key := strconv.FormatUint(k, 36)
	v, err, _ := l.group.Do(key, func() (any, error) {
		// Re-check: another caller may have completed (and inserted) this
		// key between our fast-path miss above and acquiring the
		// singleflight slot.
		if v, ok := l.cache.Get(k); ok {
			return v, nil
		}

		value, err := deserialize()
		if err != nil {
			return nil, err
		}

		// A failed deserialization never reaches here, so the registry is
		// never populated and the group entry is never marked complete on
		// error (spec §7): singleflight.Group already guarantees this by
		// only caching the error for in-flight duplicate callers, not
		// across separate Do invocations.
		result, ierr := l.cache.GetOrInsert(k, func() (V, error) { return value, nil })
		if ierr != nil {
			return nil, ierr
		}
		return result.Value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}
