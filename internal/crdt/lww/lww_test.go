package lww

import (
	"math/rand"
	"testing"

	"github.com/swarmguard/meshstore/internal/clock"
)

type fixedSource struct{ millis int64 }

func (f *fixedSource) NowMillis() int64 { return f.millis }

func newClock(t *testing.T, node string, millis int64) (*clock.Clock, *fixedSource) {
	t.Helper()
	src := &fixedSource{millis: millis}
	return clock.NewWithSource(node, src), src
}

func TestSetAndGet(t *testing.T) {
	hlc, _ := newClock(t, "n1", 1000)
	m := New[string, string](hlc)

	if _, ok := m.Get("k"); ok {
		t.Fatalf("expected absent key")
	}
	if _, err := m.Set("k", "v1", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok := m.Get("k")
	if !ok || v != "v1" {
		t.Fatalf("got %v,%v want v1,true", v, ok)
	}
}

func TestRemoveWritesTombstone(t *testing.T) {
	hlc, _ := newClock(t, "n1", 1000)
	m := New[string, int](hlc)
	m.Set("k", 1, 0)
	m.Remove("k")

	if _, ok := m.Get("k"); ok {
		t.Fatalf("expected removed key to read as absent")
	}
	rec, ok := m.GetRecord("k")
	if !ok || !rec.IsTombstone() {
		t.Fatalf("expected tombstone record, got %+v, %v", rec, ok)
	}
}

func TestTTLBoundaryInclusiveForGet(t *testing.T) {
	hlc, _ := newClock(t, "n1", 1000)
	now := int64(1000)
	m := NewWithNowFunc[string, string](hlc, func() int64 { return now })
	m.Set("k", "v", 500) // expires at millis 1500

	now = 1499
	if v, ok := m.Get("k"); !ok || v != "v" {
		t.Fatalf("expected live just before boundary, got %v,%v", v, ok)
	}
	now = 1500
	if _, ok := m.Get("k"); ok {
		t.Fatalf("expected expired at exact boundary (inclusive <=)")
	}
}

func TestMergeOrderIndependence(t *testing.T) {
	// Apply the same set of remote records to two fresh maps in different
	// orders; the final visible state must be identical regardless of
	// application order.
	hlc1, _ := newClock(t, "applier1", 1000)
	hlc2, _ := newClock(t, "applier2", 1000)
	m1 := New[string, int](hlc1)
	m2 := New[string, int](hlc2)

	src, _ := newClock(t, "origin", 2000)
	var records []Record[int]
	for i := 0; i < 20; i++ {
		ts, err := src.Now()
		if err != nil {
			t.Fatalf("now: %v", err)
		}
		v := i
		records = append(records, Record[int]{Value: &v, Timestamp: ts})
	}

	order1 := rand.New(rand.NewSource(1)).Perm(len(records))
	order2 := rand.New(rand.NewSource(2)).Perm(len(records))

	for _, i := range order1 {
		if _, err := m1.Merge("k", records[i]); err != nil {
			t.Fatalf("merge m1: %v", err)
		}
	}
	for _, i := range order2 {
		if _, err := m2.Merge("k", records[i]); err != nil {
			t.Fatalf("merge m2: %v", err)
		}
	}

	v1, ok1 := m1.Get("k")
	v2, ok2 := m2.Get("k")
	if !ok1 || !ok2 || v1 != v2 {
		t.Fatalf("merge order dependence detected: (%v,%v) vs (%v,%v)", v1, ok1, v2, ok2)
	}
}

func TestMergeIdempotent(t *testing.T) {
	hlc, _ := newClock(t, "n1", 1000)
	m := New[string, int](hlc)
	v := 7
	rec := Record[int]{Value: &v, Timestamp: clock.Timestamp{Millis: 5000, Counter: 0, NodeID: "remote"}}

	applied1, err := m.Merge("k", rec)
	if err != nil || !applied1 {
		t.Fatalf("first merge: applied=%v err=%v", applied1, err)
	}
	applied2, err := m.Merge("k", rec)
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if applied2 {
		t.Fatalf("re-merging the identical record should not re-apply (not strictly greater)")
	}
}

func TestTombstoneResurrection(t *testing.T) {
	hlc, _ := newClock(t, "n1", 1000)
	m := New[string, int](hlc)
	m.Set("k", 1, 0)
	m.Remove("k")
	if _, ok := m.Get("k"); ok {
		t.Fatalf("expected tombstoned")
	}

	// A later Set resurrects the key.
	if _, err := m.Set("k", 2, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok := m.Get("k")
	if !ok || v != 2 {
		t.Fatalf("expected resurrection to 2, got %v,%v", v, ok)
	}
}

func TestPruneOnlyOldTombstones(t *testing.T) {
	hlc, _ := newClock(t, "n1", 1000)
	m := New[string, int](hlc)
	m.Set("live", 1, 0)
	m.Remove("old")

	threshold := clock.Timestamp{Millis: 999999, Counter: 0, NodeID: "n1"}
	removed := m.Prune(threshold)

	if len(removed) != 1 || removed[0] != "old" {
		t.Fatalf("expected only 'old' pruned, got %v", removed)
	}
	if _, ok := m.GetRecord("old"); ok {
		t.Fatalf("expected tombstone gone after prune")
	}
	if _, ok := m.Get("live"); !ok {
		t.Fatalf("expected live record untouched by prune")
	}
}

func TestSetFloatTTLValidation(t *testing.T) {
	hlc, _ := newClock(t, "n1", 1000)
	m := New[string, int](hlc)

	if _, err := m.SetFloatTTL("k", 1, 0); err != ErrInvalidTTL {
		t.Fatalf("expected ErrInvalidTTL for zero ttl, got %v", err)
	}
	if _, err := m.SetFloatTTL("k", 1, -5); err != ErrInvalidTTL {
		t.Fatalf("expected ErrInvalidTTL for negative ttl, got %v", err)
	}
	if _, err := m.SetFloatTTL("k", 1, 100); err != nil {
		t.Fatalf("expected valid ttl to succeed: %v", err)
	}
}

func TestListenerNotifiedOnSetAndRemove(t *testing.T) {
	hlc, _ := newClock(t, "n1", 1000)
	m := New[string, int](hlc)

	var events []string
	m.AddListener(func(key string, old *Record[int], new Record[int]) {
		if old == nil {
			events = append(events, "add:"+key)
		} else if new.IsTombstone() {
			events = append(events, "remove:"+key)
		} else {
			events = append(events, "update:"+key)
		}
	})

	m.Set("k", 1, 0)
	m.Set("k", 2, 0)
	m.Remove("k")

	want := []string{"add:k", "update:k", "remove:k"}
	if len(events) != len(want) {
		t.Fatalf("got %v want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("got %v want %v", events, want)
		}
	}
}
