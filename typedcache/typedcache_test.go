package typedcache

import (
	"sync/atomic"
	"testing"

	"github.com/sharedcode/veccache/graph"
)

func TestRegistry_GetObject_ColdThenWarm(t *testing.T) {
	r := New[string](1000, 256, 1.0/32.0)

	var calls int64
	load := func() (string, error) {
		atomic.AddInt64(&calls, 1)
		return "value-7", nil
	}

	skip := graph.NewSkipSet()
	v, pending, err := r.GetObject(7, graph.NewBudget(10), skip, load)
	if err != nil || pending || v != "value-7" {
		t.Fatalf("cold load: v=%q pending=%v err=%v", v, pending, err)
	}

	skip2 := graph.NewSkipSet()
	v2, pending2, err2 := r.GetObject(7, graph.NewBudget(10), skip2, load)
	if err2 != nil || pending2 || v2 != "value-7" {
		t.Fatalf("warm load: v=%q pending=%v err=%v", v2, pending2, err2)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one load call across cold+warm, got %d", calls)
	}
}

func TestRegistry_GetObject_BudgetExhausted(t *testing.T) {
	r := New[int](1000, 256, 1.0/32.0)

	called := false
	load := func() (int, error) {
		called = true
		return 1, nil
	}

	skip := graph.NewSkipSet()
	v, pending, err := r.GetObject(99, graph.NewBudget(0), skip, load)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pending {
		t.Fatalf("expected pending=true when budget is exhausted")
	}
	if v != 0 {
		t.Fatalf("expected zero value on pending, got %d", v)
	}
	if called {
		t.Fatalf("load must not be invoked when the budget is already exhausted")
	}
}

func TestRegistry_GetObject_CycleDetected(t *testing.T) {
	r := New[int](1000, 256, 1.0/32.0)

	called := false
	load := func() (int, error) {
		called = true
		return 1, nil
	}

	skip := graph.NewSkipSet()
	skip.TryEnter(42) // simulate 42 already being on the recursion stack

	_, pending, err := r.GetObject(42, graph.NewBudget(10), skip, load)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pending {
		t.Fatalf("expected pending=true for a key already on the recursion stack")
	}
	if called {
		t.Fatalf("load must not be invoked for a cyclic reference")
	}
}

func TestRegistry_InsertThenGetObjectSkipsLoad(t *testing.T) {
	r := New[string](1000, 256, 1.0/32.0)
	r.Insert(55, "preloaded")

	called := false
	load := func() (string, error) {
		called = true
		return "should not happen", nil
	}

	v, pending, err := r.GetObject(55, graph.NewBudget(10), graph.NewSkipSet(), load)
	if err != nil || pending {
		t.Fatalf("v=%q pending=%v err=%v", v, pending, err)
	}
	if v != "preloaded" {
		t.Fatalf("expected preloaded value, got %q", v)
	}
	if called {
		t.Fatalf("load must not run when the value was already Inserted")
	}
}

func TestLoadItem(t *testing.T) {
	v, err := LoadItem(1000, func(b graph.Budget, s *graph.SkipSet) (int, error) {
		if b.Remaining() != 1000 {
			t.Fatalf("expected fresh budget of 1000, got %d", b.Remaining())
		}
		if s.Contains(1) {
			t.Fatalf("expected a fresh skip set")
		}
		return 42, nil
	})
	if err != nil || v != 42 {
		t.Fatalf("v=%d err=%v", v, err)
	}
}

func TestRegistry_Len(t *testing.T) {
	r := New[int](1000, 256, 1.0/32.0)
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got len=%d", r.Len())
	}
	r.Insert(1, 10)
	r.Insert(2, 20)
	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}
}
