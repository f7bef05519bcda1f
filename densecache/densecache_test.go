package densecache

import (
	"errors"
	"sync/atomic"
	"testing"

	veccache "github.com/sharedcode/veccache"
	"github.com/sharedcode/veccache/bufman"
	"github.com/sharedcode/veccache/graph"
	"github.com/sharedcode/veccache/propstore"
)

func newTestCache(t *testing.T) *Cache[string] {
	t.Helper()
	props := propstore.New(bufman.PointReader{Manager: bufman.NewMemory(make([]byte, 64))})
	return New[string](256, 1.0/32.0, props, 1000, 1)
}

func fileIndexAt(offset uint32) veccache.FileIndex {
	return veccache.NewValidFileIndex(offset, 1, 0)
}

func TestCache_GetObject_ColdThenWarm(t *testing.T) {
	c := newTestCache(t)

	var calls int64
	deserialize := func(fi veccache.FileIndex, budget graph.Budget, skip *graph.SkipSet, isLevel0 bool) (string, error) {
		atomic.AddInt64(&calls, 1)
		return "node@10", nil
	}

	v, err := c.GetObject(fileIndexAt(10), false, deserialize)
	if err != nil || v != "node@10" {
		t.Fatalf("v=%q err=%v", v, err)
	}
	v2, err2 := c.GetObject(fileIndexAt(10), false, deserialize)
	if err2 != nil || v2 != "node@10" {
		t.Fatalf("v2=%q err2=%v", v2, err2)
	}
	if calls != 1 {
		t.Fatalf("expected one deserialize call, got %d", calls)
	}
}

func TestCache_GetObject_RecursiveDescent(t *testing.T) {
	c := newTestCache(t)

	var deserialize Deserializer[string]
	deserialize = func(fi veccache.FileIndex, budget graph.Budget, skip *graph.SkipSet, isLevel0 bool) (string, error) {
		if fi.Offset == 0 {
			return "leaf", nil
		}
		child, _, err := c.GetLazyObject(fileIndexAt(fi.Offset-1), budget, skip, isLevel0, deserialize)
		if err != nil {
			return "", err
		}
		return "parent->" + child, nil
	}

	v, err := c.GetObject(fileIndexAt(3), false, deserialize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "parent->parent->parent->leaf"
	if v != want {
		t.Fatalf("got %q, want %q", v, want)
	}
}

func TestCache_ForceLoadSingleObject(t *testing.T) {
	c := newTestCache(t)

	called := 0
	deserialize := func(fi veccache.FileIndex, budget graph.Budget, skip *graph.SkipSet, isLevel0 bool) (string, error) {
		called++
		if !budget.Exhausted() {
			t.Fatalf("expected budget to be pre-exhausted for a force load")
		}
		return "forced", nil
	}

	v, err := c.ForceLoadSingleObject(fileIndexAt(5), false, deserialize)
	if err != nil || v != "forced" {
		t.Fatalf("v=%q err=%v", v, err)
	}
	if called != 1 {
		t.Fatalf("expected exactly one deserialize call, got %d", called)
	}

	// Subsequent GetObject must see the forced value without reloading.
	v2, err := c.GetObject(fileIndexAt(5), false, func(fi veccache.FileIndex, b graph.Budget, s *graph.SkipSet, l bool) (string, error) {
		t.Fatalf("should not reload after a force-load install")
		return "", nil
	})
	if err != nil || v2 != "forced" {
		t.Fatalf("v2=%q err=%v", v2, err)
	}
}

func TestCache_InsertLazyObject_RegistersProp(t *testing.T) {
	c := newTestCache(t)
	prop := &propstore.Prop{Bytes: []byte("preloaded-prop")}
	c.InsertLazyObject(fileIndexAt(1), true, "node-with-prop", prop, 0, 14)

	got, err := c.GetProp(0, 14)
	if err != nil {
		t.Fatalf("GetProp: %v", err)
	}
	if string(got.Bytes) != "preloaded-prop" {
		t.Fatalf("expected preloaded prop, got %q", got.Bytes)
	}

	v, err := c.GetObject(fileIndexAt(1), true, func(fi veccache.FileIndex, b graph.Budget, s *graph.SkipSet, l bool) (string, error) {
		t.Fatalf("should not reload an inserted lazy object")
		return "", nil
	})
	if err != nil || v != "node-with-prop" {
		t.Fatalf("v=%q err=%v", v, err)
	}
}

func TestCache_LevelBitDistinguishesIdenticalOffsets(t *testing.T) {
	c := newTestCache(t)

	calls := map[bool]int{}
	deserialize := func(fi veccache.FileIndex, budget graph.Budget, skip *graph.SkipSet, isLevel0 bool) (string, error) {
		calls[isLevel0]++
		if isLevel0 {
			return "level0", nil
		}
		return "level1", nil
	}

	v0, err := c.GetObject(fileIndexAt(8), true, deserialize)
	if err != nil || v0 != "level0" {
		t.Fatalf("v0=%q err=%v", v0, err)
	}
	v1, err := c.GetObject(fileIndexAt(8), false, deserialize)
	if err != nil || v1 != "level1" {
		t.Fatalf("v1=%q err=%v", v1, err)
	}
	if calls[true] != 1 || calls[false] != 1 {
		t.Fatalf("expected one call per level bit, got %+v", calls)
	}
}

func TestCache_LoadItem_RejectsInvalidFileIndex(t *testing.T) {
	c := newTestCache(t)
	_, err := c.LoadItem(veccache.InvalidFileIndex, false, func(fi veccache.FileIndex, b graph.Budget, s *graph.SkipSet, l bool) (string, error) {
		t.Fatalf("deserialize should not run for an Invalid FileIndex")
		return "", nil
	})
	if err == nil {
		t.Fatalf("expected an error for an Invalid FileIndex")
	}
	var vErr *veccache.Error
	if !errors.As(err, &vErr) || vErr.Code != veccache.InvalidInput {
		t.Fatalf("expected veccache.InvalidInput, got %v", err)
	}
}

func TestCache_LoadItem_BypassesRegistry(t *testing.T) {
	c := newTestCache(t)

	calls := 0
	deserialize := func(fi veccache.FileIndex, b graph.Budget, s *graph.SkipSet, l bool) (string, error) {
		calls++
		if b.Exhausted() {
			t.Fatalf("expected LoadItem to grant a non-zero recursion budget")
		}
		return "loaded", nil
	}

	v, err := c.LoadItem(fileIndexAt(20), false, deserialize)
	if err != nil || v != "loaded" {
		t.Fatalf("v=%q err=%v", v, err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected LoadItem not to populate the registry, got %d entries", c.Len())
	}

	v2, err := c.LoadItem(fileIndexAt(20), false, deserialize)
	if err != nil || v2 != "loaded" {
		t.Fatalf("v2=%q err=%v", v2, err)
	}
	if calls != 2 {
		t.Fatalf("expected LoadItem to call deserialize every time, got %d calls", calls)
	}
}

func TestLoadRegion(t *testing.T) {
	m := bufman.NewMemory(make([]byte, 55)) // 5 nodes of size 10, plus 5 leftover bytes
	const nodeSize = 10

	var offsets []uint32
	nodes, err := LoadRegion[string](m, 0, nodeSize, 0, func(offset uint32) (string, error) {
		offsets = append(offsets, offset)
		return "node", nil
	})
	if err != nil {
		t.Fatalf("LoadRegion: %v", err)
	}
	if len(nodes) != 6 { // offsets 0,10,20,30,40,50 all < 55
		t.Fatalf("expected 6 nodes, got %d", len(nodes))
	}
	for i, off := range offsets {
		if off != uint32(i*nodeSize) {
			t.Fatalf("offset %d: got %d, want %d", i, off, i*nodeSize)
		}
	}
}

func TestLoadRegion_PastEndOfFile(t *testing.T) {
	m := bufman.NewMemory(make([]byte, 10))
	nodes, err := LoadRegion[string](m, 1000, 10, 0, func(offset uint32) (string, error) {
		t.Fatalf("load should not be called when regionStart is past file size")
		return "", nil
	})
	if err != nil {
		t.Fatalf("LoadRegion: %v", err)
	}
	if nodes != nil {
		t.Fatalf("expected nil result, got %v", nodes)
	}
}
