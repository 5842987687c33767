package resultset

import (
	"sort"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
)

func collect[K comparable](rs ResultSet[K]) []K {
	out := make([]K, 0, rs.Size())
	it := rs.Iterator()
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

func TestMapSetBasics(t *testing.T) {
	s := NewMapSet([]string{"a", "b", "c"})
	if s.Size() != 3 || s.IsEmpty() {
		t.Fatalf("unexpected size/empty: %d %v", s.Size(), s.IsEmpty())
	}
	if !s.Contains("b") || s.Contains("z") {
		t.Fatalf("unexpected Contains result")
	}
	arr := s.ToArray()
	sort.Strings(arr)
	if len(arr) != 3 || arr[0] != "a" {
		t.Fatalf("unexpected ToArray: %v", arr)
	}
}

func TestBitmapSetSharesIDTable(t *testing.T) {
	ids := NewIDTable[string]()
	a := ids.IDFor("a")
	b := ids.IDFor("b")
	bm := roaring.New()
	bm.Add(a)
	bm.Add(b)

	s := NewBitmapSet(ids, bm, 1)
	if s.Size() != 2 {
		t.Fatalf("expected size 2, got %d", s.Size())
	}
	if !s.Contains("a") || s.Contains("c") {
		t.Fatalf("unexpected Contains result")
	}
	arr := s.ToArray()
	sort.Strings(arr)
	if len(arr) != 2 || arr[0] != "a" || arr[1] != "b" {
		t.Fatalf("unexpected ToArray: %v", arr)
	}
}

func TestLazySetMaterializesOnce(t *testing.T) {
	calls := 0
	gen := func() []string {
		calls++
		return []string{"x", "y"}
	}
	s := NewLazySet(gen, 10, 3)
	if s.MergeCost() != 10 {
		t.Fatalf("expected pre-materialization estimate, got %d", s.MergeCost())
	}
	if s.Size() != 2 {
		t.Fatalf("expected size 2, got %d", s.Size())
	}
	if s.MergeCost() != 2 {
		t.Fatalf("expected post-materialization exact count, got %d", s.MergeCost())
	}
	_ = s.ToArray()
	_ = s.IsEmpty()
	if calls != 1 {
		t.Fatalf("expected gen called exactly once, got %d", calls)
	}
}

func TestSortedSetPreservesOrder(t *testing.T) {
	s := NewSortedSet([]int{3, 1, 2}, 1)
	got := collect[int](s)
	want := []int{3, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order preserved, got %v want %v", got, want)
		}
	}
}

func TestIntersectBitmapFastPath(t *testing.T) {
	ids := NewIDTable[string]()
	a, b, c := ids.IDFor("a"), ids.IDFor("b"), ids.IDFor("c")

	bm1 := roaring.New()
	bm1.Add(a)
	bm1.Add(b)
	bm2 := roaring.New()
	bm2.Add(b)
	bm2.Add(c)

	s1 := NewBitmapSet(ids, bm1, 1)
	s2 := NewBitmapSet(ids, bm2, 1)

	result := Intersect[string](s1, s2)
	if result.Size() != 1 || !result.Contains("b") {
		t.Fatalf("expected intersection {b}, got %v", result.ToArray())
	}
	if _, ok := result.(*BitmapSet[string]); !ok {
		t.Fatalf("expected bitmap fast path to produce a *BitmapSet")
	}
}

func TestIntersectMixedFallsBackToMapIntersection(t *testing.T) {
	s1 := NewMapSet([]string{"a", "b", "c"})
	s2 := NewMapSet([]string{"b", "c", "d"})
	result := Intersect[string](s1, s2)
	arr := result.ToArray()
	sort.Strings(arr)
	if len(arr) != 2 || arr[0] != "b" || arr[1] != "c" {
		t.Fatalf("expected {b,c}, got %v", arr)
	}
}

func TestUnion(t *testing.T) {
	s1 := NewMapSet([]string{"a"})
	s2 := NewMapSet([]string{"b"})
	result := Union[string](s1, s2)
	arr := result.ToArray()
	sort.Strings(arr)
	if len(arr) != 2 || arr[0] != "a" || arr[1] != "b" {
		t.Fatalf("expected {a,b}, got %v", arr)
	}
}

func TestSubtractBitmapFastPath(t *testing.T) {
	ids := NewIDTable[string]()
	a, b := ids.IDFor("a"), ids.IDFor("b")
	bm1 := roaring.New()
	bm1.Add(a)
	bm1.Add(b)
	bm2 := roaring.New()
	bm2.Add(b)

	s1 := NewBitmapSet(ids, bm1, 1)
	s2 := NewBitmapSet(ids, bm2, 1)

	result := Subtract[string](s1, s2)
	if result.Size() != 1 || !result.Contains("a") {
		t.Fatalf("expected {a}, got %v", result.ToArray())
	}
}

func TestIDTableReleaseRecyclesID(t *testing.T) {
	ids := NewIDTable[string]()
	id1 := ids.IDFor("a")
	ids.Release("a")
	id2 := ids.IDFor("b")
	if id2 != id1 {
		t.Fatalf("expected released id %d to be recycled, got %d", id1, id2)
	}
	if _, ok := ids.LookupID("a"); ok {
		t.Fatalf("expected released key to no longer be looked up")
	}
}
