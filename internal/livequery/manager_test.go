package livequery

import (
	"errors"
	"testing"

	"github.com/swarmguard/meshstore/internal/attribute"
	"github.com/swarmguard/meshstore/internal/index"
	"github.com/swarmguard/meshstore/internal/query"
	"github.com/swarmguard/meshstore/internal/value"
)

type widget struct {
	status string
	count  int64
}

func newTestManager(t *testing.T) (*Manager[string, widget], map[string]widget) {
	t.Helper()
	reg := index.NewRegistry[string, widget]()
	statusAttr := attribute.Simple("status", func(w widget) (value.Value, bool) { return value.Text(w.status), true })
	reg.Register(index.NewHashIndex[string, widget](statusAttr, reg.IDs()))

	records := map[string]widget{
		"w1": {status: "open", count: 1},
		"w2": {status: "closed", count: 2},
	}
	for k, r := range records {
		reg.OnAdd(k, r)
	}
	fetch := func(k string) (widget, bool) { r, ok := records[k]; return r, ok }
	universe := func() []string {
		out := make([]string, 0, len(records))
		for k := range records {
			out = append(out, k)
		}
		return out
	}
	extractors := query.Extractors[widget]{"status": statusAttr}
	planner := query.NewPlanner[string, widget](reg, fetch, universe, extractors)
	return NewManager[string, widget](planner, extractors, nil, nil), records
}

func TestSubscribeEmitsInitialSnapshot(t *testing.T) {
	m, _ := newTestManager(t)
	pred := query.Leaf{Op: query.OpEq, Attribute: "status", Value: value.Text("open")}

	var gotInitial []string
	sub, err := m.Subscribe(pred, func(ev Event[string, widget]) error {
		if ev.Kind == EventInitial {
			gotInitial = ev.Results
		}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if len(gotInitial) != 1 || gotInitial[0] != "w1" {
		t.Fatalf("expected initial [w1], got %v", gotInitial)
	}
}

func TestAddedTransitionFiresOnMatchingInsert(t *testing.T) {
	m, _ := newTestManager(t)
	pred := query.Leaf{Op: query.OpEq, Attribute: "status", Value: value.Text("open")}

	var deltas []Delta[string, widget]
	sub, err := m.Subscribe(pred, func(ev Event[string, widget]) error {
		if ev.Kind == EventDelta {
			deltas = append(deltas, ev.Delta)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	m.OnRecordAdded("w3", widget{status: "open", count: 3})
	if len(deltas) != 1 || deltas[0].Change != ChangeAdded || deltas[0].Key != "w3" {
		t.Fatalf("expected one Added delta for w3, got %+v", deltas)
	}
	if deltas[0].NewResultCount != 2 {
		t.Fatalf("expected result count 2, got %d", deltas[0].NewResultCount)
	}

	m.OnRecordAdded("w4", widget{status: "closed", count: 4})
	if len(deltas) != 1 {
		t.Fatalf("non-matching insert must not emit a delta, got %+v", deltas)
	}
}

func TestUpdatedTransitionsAndRemoval(t *testing.T) {
	m, _ := newTestManager(t)
	pred := query.Leaf{Op: query.OpEq, Attribute: "status", Value: value.Text("open")}

	var deltas []Delta[string, widget]
	sub, err := m.Subscribe(pred, func(ev Event[string, widget]) error {
		if ev.Kind == EventDelta {
			deltas = append(deltas, ev.Delta)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	// still matches: open -> open, fires Updated.
	m.OnRecordUpdated("w1", widget{status: "open", count: 1}, widget{status: "open", count: 99})
	if len(deltas) != 1 || deltas[0].Change != ChangeUpdated {
		t.Fatalf("expected Updated delta, got %+v", deltas)
	}

	// leaves the match set: open -> closed, fires Removed.
	m.OnRecordUpdated("w1", widget{status: "open", count: 99}, widget{status: "closed", count: 99})
	if len(deltas) != 2 || deltas[1].Change != ChangeRemoved {
		t.Fatalf("expected Removed delta second, got %+v", deltas)
	}

	// was never in the set: closed -> closed, no event.
	m.OnRecordUpdated("w2", widget{status: "closed", count: 2}, widget{status: "closed", count: 3})
	if len(deltas) != 2 {
		t.Fatalf("non-transition update must not emit, got %+v", deltas)
	}

	// removing an absent-from-set record fires nothing.
	m.OnRecordRemoved("w2", widget{status: "closed", count: 3})
	if len(deltas) != 2 {
		t.Fatalf("removal of non-matching record must not emit, got %+v", deltas)
	}
}

func TestUpdatedWithUnchangedValueIsSuppressed(t *testing.T) {
	m, _ := newTestManager(t)
	pred := query.Leaf{Op: query.OpEq, Attribute: "status", Value: value.Text("open")}

	var deltas []Delta[string, widget]
	sub, err := m.Subscribe(pred, func(ev Event[string, widget]) error {
		if ev.Kind == EventDelta {
			deltas = append(deltas, ev.Delta)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	// idempotent re-Set of the exact same value must not emit Updated.
	m.OnRecordUpdated("w1", widget{status: "open", count: 1}, widget{status: "open", count: 1})
	if len(deltas) != 0 {
		t.Fatalf("expected no delta for an unchanged value, got %+v", deltas)
	}

	// a genuine change still fires normally afterward.
	m.OnRecordUpdated("w1", widget{status: "open", count: 1}, widget{status: "open", count: 2})
	if len(deltas) != 1 || deltas[0].Change != ChangeUpdated {
		t.Fatalf("expected one Updated delta for a real change, got %+v", deltas)
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	m, _ := newTestManager(t)
	pred := query.Leaf{Op: query.OpEq, Attribute: "status", Value: value.Text("open")}

	calls := 0
	sub, err := m.Subscribe(pred, func(ev Event[string, widget]) error {
		if ev.Kind == EventDelta {
			calls++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent

	m.OnRecordAdded("w5", widget{status: "open", count: 5})
	if calls != 0 {
		t.Fatalf("expected no calls after unsubscribe, got %d", calls)
	}

	m.mu.Lock()
	remaining := len(m.entries)
	m.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected entry to be dropped after last unsubscribe, got %d entries", remaining)
	}
}

func TestCallbackErrorIsolation(t *testing.T) {
	m, _ := newTestManager(t)
	pred := query.Leaf{Op: query.OpEq, Attribute: "status", Value: value.Text("open")}

	secondCalled := false
	sub1, err := m.Subscribe(pred, func(ev Event[string, widget]) error {
		if ev.Kind == EventDelta {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub1.Unsubscribe()

	sub2, err := m.Subscribe(pred, func(ev Event[string, widget]) error {
		if ev.Kind == EventDelta {
			secondCalled = true
		}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub2.Unsubscribe()

	m.OnRecordAdded("w6", widget{status: "open", count: 6})
	if !secondCalled {
		t.Fatalf("expected second subscriber to still be notified after first errored")
	}
}

func TestCanonicalKeyDedupesEquivalentPredicates(t *testing.T) {
	a := query.Leaf{Op: query.OpEq, Attribute: "status", Value: value.Text("open")}
	b := query.Leaf{Op: query.OpEq, Attribute: "status", Value: value.Text("open")}
	c := query.Leaf{Op: query.OpEq, Attribute: "status", Value: value.Text("closed")}

	if CanonicalKey(a) != CanonicalKey(b) {
		t.Fatalf("expected identical predicates to canonicalize equal")
	}
	if CanonicalKey(a) == CanonicalKey(c) {
		t.Fatalf("expected differing predicates to canonicalize distinct")
	}
}

func TestSharedEntryAcrossTwoSubscribers(t *testing.T) {
	m, _ := newTestManager(t)
	pred := query.Leaf{Op: query.OpEq, Attribute: "status", Value: value.Text("open")}

	var count1, count2 int
	sub1, _ := m.Subscribe(pred, func(ev Event[string, widget]) error {
		if ev.Kind == EventDelta {
			count1++
		}
		return nil
	})
	defer sub1.Unsubscribe()
	sub2, _ := m.Subscribe(pred, func(ev Event[string, widget]) error {
		if ev.Kind == EventDelta {
			count2++
		}
		return nil
	})
	defer sub2.Unsubscribe()

	m.mu.Lock()
	entries := len(m.entries)
	m.mu.Unlock()
	if entries != 1 {
		t.Fatalf("expected one shared entry for equivalent predicates, got %d", entries)
	}

	m.OnRecordAdded("w7", widget{status: "open", count: 7})
	if count1 != 1 || count2 != 1 {
		t.Fatalf("expected both subscribers notified once, got %d %d", count1, count2)
	}
}
