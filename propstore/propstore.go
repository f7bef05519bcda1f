// Package propstore implements the weak-reference property registry of
// spec §4.5: a get_prop cache keyed by (offset, length) whose entries do not
// keep the blob alive once nothing else is holding it, so that warm but
// unused property blobs vacate memory under GC pressure without needing an
// explicit eviction policy.
//
// The shape mirrors the teacher's L1Cache.GetNode/SetNode pattern in
// cache/l1_cache.go (check a lookup map, fall through to a slower source,
// populate on miss) but trades L1Cache's MRU+L2-cache strong-reference
// design for Go 1.24's weak package, since NodeProp blobs are meant to be
// reconstructible from disk and are not worth pinning in RAM the way a
// btree node is.
package propstore

import (
	"sync"
	"weak"

	veccache "github.com/sharedcode/veccache"
)

// Reader is the minimal file-access contract propstore needs to materialize
// a property blob; bufman.PointReader(manager) satisfies it.
type Reader interface {
	ReadAt(offset, length uint32) ([]byte, error)
}

// Prop is a property blob. Bytes holds the raw bytes read from the prop
// file; turning them into a domain type is left to the caller.
type Prop struct {
	Bytes []byte
}

// Store is the weak-reference property registry.
type Store struct {
	mu       sync.Mutex
	registry map[veccache.PropKey]weak.Pointer[Prop]
	reader   Reader
}

// New creates a Store backed by reader (typically a bufman.BufferManager
// over the prop file).
func New(reader Reader) *Store {
	return &Store{
		registry: make(map[veccache.PropKey]weak.Pointer[Prop]),
		reader:   reader,
	}
}

// GetProp returns the property blob at (offset, length), reading it from
// the backing file only if no live strong reference to a previous read
// survives in the registry (spec §4.5).
func (s *Store) GetProp(offset, length uint32) (*Prop, error) {
	key := veccache.NewPropKey(offset, length)

	s.mu.Lock()
	if wp, ok := s.registry[key]; ok {
		if p := wp.Value(); p != nil {
			s.mu.Unlock()
			return p, nil
		}
	}
	s.mu.Unlock()

	// Multiple goroutines may race to re-read the same dead entry; unlike
	// lru.Loader this is not single-flighted because prop reads are cheap,
	// bounded point reads rather than recursive graph loads (spec §4.5
	// explicitly does not require single-flight here).
	raw, err := s.reader.ReadAt(offset, length)
	if err != nil {
		return nil, err
	}
	prop := &Prop{Bytes: raw}

	s.mu.Lock()
	s.registry[key] = weak.Make(prop)
	s.mu.Unlock()

	return prop, nil
}

// Put registers an already-materialized prop (e.g. one embedded in a
// user-constructed node pre-installed via insert_lazy_object, spec §4.6)
// under its own key without re-reading it from disk.
func (s *Store) Put(offset, length uint32, prop *Prop) {
	key := veccache.NewPropKey(offset, length)
	s.mu.Lock()
	s.registry[key] = weak.Make(prop)
	s.mu.Unlock()
}

// Len reports the number of entries currently tracked, including ones whose
// weak pointer has already gone dead; it is a diagnostic, not a capacity
// bound, since propstore never evicts explicitly.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.registry)
}

// Compact drops dead entries from the registry. propstore relies on GC to
// reclaim the underlying blobs; Compact only trims the bookkeeping map
// itself, which would otherwise grow unbounded across the lifetime of a
// long-running process (spec §4.5 open question, resolved in DESIGN.md).
func (s *Store) Compact() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, wp := range s.registry {
		if wp.Value() == nil {
			delete(s.registry, k)
			removed++
		}
	}
	return removed
}
