package veccache

import (
	"errors"
	"math"
	"testing"
)

func TestFileIndex_InvalidIsZeroValue(t *testing.T) {
	var f FileIndex
	if f.IsValid() {
		t.Fatalf("expected zero-value FileIndex to be invalid")
	}
	if InvalidFileIndex.IsValid() {
		t.Fatalf("expected InvalidFileIndex to be invalid")
	}
}

func TestFileIndex_CombineDense(t *testing.T) {
	f := NewValidFileIndex(10, 7, 1)

	gotLevel1 := f.CombineDense(false)
	wantLevel1 := (uint64(10) << 32) | uint64(7)
	if gotLevel1 != wantLevel1 {
		t.Fatalf("CombineDense(false) = %#x, want %#x", gotLevel1, wantLevel1)
	}

	gotLevel0 := f.CombineDense(true)
	if gotLevel0 != wantLevel1|level0Bit {
		t.Fatalf("CombineDense(true) = %#x, want level0Bit set", gotLevel0)
	}
	if gotLevel0 == gotLevel1 {
		t.Fatalf("expected level bit to distinguish the two combined indices")
	}
}

func TestFileIndex_CombineDense_Invalid(t *testing.T) {
	if InvalidFileIndex.CombineDense(false) != math.MaxUint64 {
		t.Fatalf("expected Invalid to combine to MaxUint64")
	}
	if InvalidFileIndex.CombineDense(true) != math.MaxUint64 {
		t.Fatalf("expected Invalid to combine to MaxUint64 regardless of level")
	}
}

func TestFileIndex_CombineGeneric_IgnoresVersionNumber(t *testing.T) {
	a := NewValidFileIndex(5, 9, 1)
	b := NewValidFileIndex(5, 9, 99)
	if a.CombineGeneric() != b.CombineGeneric() {
		t.Fatalf("expected VersionNumber to be excluded from generic combined identity")
	}
}

func TestCombineInvertedData(t *testing.T) {
	got := CombineInvertedData(3, 1024)
	want := (uint64(3) << 32) | uint64(1024)
	if got != want {
		t.Fatalf("CombineInvertedData = %#x, want %#x", got, want)
	}
}

func TestNewPropKey(t *testing.T) {
	k := NewPropKey(100, 50)
	want := PropKey((uint64(100) << 32) | uint64(50))
	if k != want {
		t.Fatalf("NewPropKey = %#x, want %#x", k, want)
	}
}

func TestError_UnwrapAndMessage(t *testing.T) {
	inner := errors.New("disk full")
	err := NewError(IoFailure, inner)
	if !errors.Is(err, inner) {
		t.Fatalf("expected Unwrap to expose the inner error")
	}
	if err.Code != IoFailure {
		t.Fatalf("expected code IoFailure, got %v", err.Code)
	}
}

func TestNewCorruption_WrapsAsIoFailure(t *testing.T) {
	err := NewCorruption(errors.New("bad checksum"))
	if err.Code != IoFailure {
		t.Fatalf("expected NewCorruption to classify as IoFailure, got %v", err.Code)
	}
}

func TestVersionRegistry_ResolveIsStable(t *testing.T) {
	r := NewVersionRegistry()
	v := NewVersionID()

	n1 := r.Resolve(v)
	n2 := r.Resolve(v)
	if n1 != n2 {
		t.Fatalf("expected repeated Resolve calls to return the same number, got %d and %d", n1, n2)
	}

	got, ok := r.Lookup(n1)
	if !ok || got != v {
		t.Fatalf("expected Lookup to recover the original VersionID")
	}
}

func TestVersionRegistry_DistinctVersionsGetDistinctNumbers(t *testing.T) {
	r := NewVersionRegistry()
	a := r.Resolve(NewVersionID())
	b := r.Resolve(NewVersionID())
	if a == b {
		t.Fatalf("expected distinct VersionIDs to resolve to distinct numbers")
	}
}

func TestDefaultConfiguration_Sane(t *testing.T) {
	c := DefaultConfiguration()
	if c.DeepMaxLoads <= c.ShallowMaxLoads {
		t.Fatalf("expected DeepMaxLoads > ShallowMaxLoads, got %d <= %d", c.DeepMaxLoads, c.ShallowMaxLoads)
	}
	if c.ChunkSize <= 0 {
		t.Fatalf("expected a positive default ChunkSize")
	}
}
