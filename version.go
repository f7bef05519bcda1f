package veccache

import (
	"sync"

	"github.com/google/uuid"
)

// VersionID is the stable, human/ops-facing identity of a version branch.
// Version/branch management is an external collaborator (spec §1); this
// module only needs a way to mint and resolve branch identities down to
// the numeric version_id a FileIndex embeds, the same "logical identity
// behind a numeric physical encoding" role the teacher's sop.UUID plays for
// btree Handles.
type VersionID uuid.UUID

// NewVersionID returns a new randomly generated VersionID.
func NewVersionID() VersionID {
	return VersionID(uuid.New())
}

// String returns the canonical string representation of the VersionID.
func (v VersionID) String() string {
	return uuid.UUID(v).String()
}

// VersionRegistry resolves VersionIDs to the numeric version_id a FileIndex
// embeds, and vice versa. It is intentionally simple: it does not persist,
// branch, or merge versions (those are the external version manager's
// job per spec §1); it only hands out a stable, process-local numeric
// alias for each VersionID so callers can build FileIndex values.
type VersionRegistry struct {
	mu       sync.RWMutex
	byID     map[VersionID]uint32
	byNumber map[uint32]VersionID
	next     uint32
}

// NewVersionRegistry creates an empty registry. Numeric version_id 0 is
// reserved and never assigned (numbering starts at 1), so the zero
// version_id of a zero-value FileIndex never names a registered version.
func NewVersionRegistry() *VersionRegistry {
	return &VersionRegistry{
		byID:     make(map[VersionID]uint32),
		byNumber: make(map[uint32]VersionID),
		next:     1,
	}
}

// Resolve returns the numeric version_id for v, assigning a fresh one on
// first use.
func (r *VersionRegistry) Resolve(v VersionID) uint32 {
	r.mu.RLock()
	if n, ok := r.byID[v]; ok {
		r.mu.RUnlock()
		return n
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.byID[v]; ok {
		return n
	}
	n := r.next
	r.next++
	r.byID[v] = n
	r.byNumber[n] = v
	return n
}

// Lookup returns the VersionID registered under the given numeric
// version_id, if any.
func (r *VersionRegistry) Lookup(versionID uint32) (VersionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byNumber[versionID]
	return v, ok
}
