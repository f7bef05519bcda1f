// Package typedcache implements the generic typed cache of spec §4.8: a
// cuckoo-filter existence pre-check layered in front of a probabilistic LRU
// registry, generalizing the Rust NodeRegistry's get_object from
// original_source/src/models/cache_loader.rs.
//
// The original dispatches on a hand-rolled CacheItem tagged union (one enum
// variant per cacheable Rust type, generated by a macro) so that a single
// concrete registry can hold heterogeneous node types. Go's type parameters
// make that indirection unnecessary: Registry[T] is instantiated once per
// concrete cacheable type instead, which is both simpler and gives the
// compiler static type safety the Rust from_cache_item/into_cache_item pair
// only checked at runtime.
package typedcache

import (
	"encoding/binary"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/sharedcode/veccache/graph"
	"github.com/sharedcode/veccache/lru"
)

// Registry is a cuckoo-filtered, single-producer, recursion-budgeted cache
// for one cacheable type T, keyed by a caller-supplied combined index
// (spec §3's FileIndex.Combine* family).
type Registry[T any] struct {
	filter   *cuckoo.Filter
	registry *lru.Cache[T]
}

// New creates a Registry with the given cuckoo filter capacity (an upper
// estimate of distinct keys expected over the registry's lifetime) and LRU
// soft capacity/eviction probability.
func New[T any](cuckooCapacity uint, lruSoftCapacity int, evictionProbability float64) *Registry[T] {
	return &Registry[T]{
		filter:   cuckoo.NewFilter(cuckooCapacity),
		registry: lru.New[T](lruSoftCapacity, evictionProbability),
	}
}

func keyBytes(combinedIndex uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], combinedIndex)
	return b[:]
}

// GetObject is the generic cached recursive load of spec §4.3/§4.8:
//   - a cuckoo-filter hit that turns out to be a registry miss means the
//     entry was evicted after being filtered in; it is treated as an
//     ordinary miss rather than an error (the filter only ever false-hits
//     in the "reload" direction, never loses a true positive).
//   - when the recursion budget is exhausted or k is already on the
//     current recursion stack, GetObject returns (zero, true, nil): a
//     "pending" placeholder the caller resolves lazily later, matching the
//     Rust LazyItem-with-no-data stub.
//   - concurrent callers that reach this point simultaneously may each
//     invoke load, but only one result is stored: via Cache.GetOrInsert's
//     single-producer semantics every caller gets the winning value and
//     the losers' results are discarded.
func (r *Registry[T]) GetObject(k uint64, budget graph.Budget, skip *graph.SkipSet, load func() (T, error)) (value T, pending bool, err error) {
	if r.filter.Lookup(keyBytes(k)) {
		if v, ok := r.registry.Get(k); ok {
			return v, false, nil
		}
	}

	if !graph.ShouldDescend(budget, skip, k) {
		var zero T
		return zero, true, nil
	}

	result, err := r.registry.GetOrInsert(k, load)
	if err != nil {
		var zero T
		return zero, false, err
	}
	if !result.Hit {
		r.filter.InsertUnique(keyBytes(k))
	}
	return result.Value, false, nil
}

// Get performs a direct registry lookup without consulting the recursion
// budget, used by force-load / one-shot paths (spec §4.8's load_item).
func (r *Registry[T]) Get(k uint64) (T, bool) {
	return r.registry.Get(k)
}

// Insert directly populates the registry and marks k present in the
// cuckoo filter, used by insert_lazy_object (spec §4.6 step) after a node
// has been constructed outside the normal load path.
func (r *Registry[T]) Insert(k uint64, v T) {
	r.registry.Insert(k, v)
	r.filter.InsertUnique(keyBytes(k))
}

// LoadItem is the one-shot deserialize-at-max-budget entry point (spec
// §4.8's load_item<T>): the budget starts at the caller's maxLoads (1000 in
// DefaultConfiguration's LoadItemMaxLoads) and a fresh skip set is created
// per call, so no recursion context is reused across unrelated top-level
// loads.
func LoadItem[T any](maxLoads uint16, load func(graph.Budget, *graph.SkipSet) (T, error)) (T, error) {
	return load(graph.NewBudget(maxLoads), graph.NewSkipSet())
}

// Len reports the number of live entries in the backing LRU registry.
func (r *Registry[T]) Len() int {
	return r.registry.Len()
}
