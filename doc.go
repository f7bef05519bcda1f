// Package veccache implements the lazy-loading node cache at the heart of a
// disk-backed vector/inverted index engine. It mediates between in-memory
// graph/index structures (dense HNSW-like nodes, sparse inverted-index
// nodes, fixed-set indices, property blobs) and their on-disk
// representation in versioned buffer-managed files.
//
// This package defines the shared identity scheme (FileIndex, combined
// index, PropKey), the error taxonomy, and the ambient logging/config
// helpers used across the subpackages:
//
//   - lru - the probabilistic LRU and single-flight loader (spec §4.1, §4.2)
//   - graph - recursion budget and cycle-skip set (spec §4.3)
//   - propstore - weak-reference property registry (spec §4.5)
//   - bufman - the buffer-manager external contract (spec §6)
//   - chunked - the on-disk chunked serializer (spec §4.9)
//   - typedcache - generic typed cache with cuckoo filter (spec §4.8)
//   - densecache - the dense node cache (spec §4.6, §4.4)
//   - invertedcache - the inverted index cache (spec §4.7)
//
// The underlying buffer-manager/file I/O layer, concrete node payload
// semantics, version/branch management, and higher-level index algorithms
// are external collaborators referenced only through interfaces.
package veccache
