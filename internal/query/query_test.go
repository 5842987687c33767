package query

import (
	"testing"

	"github.com/swarmguard/meshstore/internal/attribute"
	"github.com/swarmguard/meshstore/internal/index"
	"github.com/swarmguard/meshstore/internal/value"
)

type person struct {
	status string
	age    int64
	name   string
}

func buildRegistry(t *testing.T) (*index.Registry[string, person], map[string]person, Extractors[person]) {
	t.Helper()
	reg := index.NewRegistry[string, person]()

	statusAttr := attribute.Simple("status", func(p person) (value.Value, bool) {
		return value.Text(p.status), true
	})
	ageAttr := attribute.Simple("age", func(p person) (value.Value, bool) {
		return value.Int(p.age), true
	})

	hashIdx := index.NewHashIndex[string, person](statusAttr, reg.IDs())
	navIdx := index.NewNavigableIndex[string, person](ageAttr, reg.IDs(), nil)
	reg.Register(hashIdx)
	reg.Register(navIdx)

	records := map[string]person{
		"p1": {status: "active", age: 25, name: "a"},
		"p2": {status: "active", age: 35, name: "b"},
		"p3": {status: "inactive", age: 40, name: "c"},
		"p4": {status: "active", age: 50, name: "d"},
	}
	for k, rec := range records {
		reg.OnAdd(k, rec)
	}

	nameAttr := attribute.Simple("name", func(p person) (value.Value, bool) {
		return value.Text(p.name), true
	})
	extractors := Extractors[person]{
		"status": statusAttr,
		"age":    ageAttr,
		"name":   nameAttr,
	}
	return reg, records, extractors
}

func TestAndQueryUsesTwoIndexScans(t *testing.T) {
	// An And over two indexed attributes should plan as two IndexScans
	// merged, not a full scan.
	reg, records, extractors := buildRegistry(t)
	fetch := func(k string) (person, bool) { r, ok := records[k]; return r, ok }
	universe := func() []string {
		out := make([]string, 0, len(records))
		for k := range records {
			out = append(out, k)
		}
		return out
	}

	planner := NewPlanner[string, person](reg, fetch, universe, extractors)

	pred := And{Children: []Predicate{
		Leaf{Op: OpEq, Attribute: "status", Value: value.Text("active")},
		Leaf{Op: OpGT, Attribute: "age", Value: value.Int(30)},
	}}

	plan, err := planner.Plan(pred)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	result, err := plan.Execute()
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	got := make(map[string]bool)
	for _, k := range result.ToArray() {
		got[k] = true
	}
	want := map[string]bool{"p2": true, "p4": true}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for k := range want {
		if !got[k] {
			t.Fatalf("missing expected key %s in %v", k, got)
		}
	}

	explain := plan.Explain()
	if explain.Kind != "And" {
		t.Fatalf("expected root And node, got %s", explain.Kind)
	}
	if len(explain.Children) != 2 {
		t.Fatalf("expected 2 children (two IndexScans), got %d: %+v", len(explain.Children), explain.Children)
	}
	for _, c := range explain.Children {
		if c.Kind != "IndexScan" {
			t.Fatalf("expected both AND children to be IndexScan, got %s", c.Kind)
		}
	}
}

func TestFullScanWhenNoIndex(t *testing.T) {
	reg, records, extractors := buildRegistry(t)
	fetch := func(k string) (person, bool) { r, ok := records[k]; return r, ok }
	universe := func() []string {
		out := make([]string, 0, len(records))
		for k := range records {
			out = append(out, k)
		}
		return out
	}
	planner := NewPlanner[string, person](reg, fetch, universe, extractors)

	pred := Leaf{Op: OpEq, Attribute: "name", Value: value.Text("c")}
	plan, err := planner.Plan(pred)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	explain := plan.Explain()
	if explain.Kind != "Filter" || explain.Children[0].Kind != "FullScan" {
		t.Fatalf("expected Filter(FullScan), got %+v", explain)
	}

	result, err := plan.Execute()
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	arr := result.ToArray()
	if len(arr) != 1 || arr[0] != "p3" {
		t.Fatalf("expected [p3], got %v", arr)
	}
}

func TestForceIndexScanFailsWhenNoIndex(t *testing.T) {
	reg, records, extractors := buildRegistry(t)
	fetch := func(k string) (person, bool) { r, ok := records[k]; return r, ok }
	universe := func() []string {
		out := make([]string, 0, len(records))
		for k := range records {
			out = append(out, k)
		}
		return out
	}
	planner := NewPlanner[string, person](reg, fetch, universe, extractors)

	pred := Leaf{Op: OpEq, Attribute: "name", Value: value.Text("c")}
	_, err := planner.plan(pred, Options{ForceIndexScan: true})
	if err != ErrNoIndexAvailable {
		t.Fatalf("expected ErrNoIndexAvailable, got %v", err)
	}
}

func TestUseIndexHint(t *testing.T) {
	reg, records, extractors := buildRegistry(t)
	fetch := func(k string) (person, bool) { r, ok := records[k]; return r, ok }
	universe := func() []string {
		out := make([]string, 0, len(records))
		for k := range records {
			out = append(out, k)
		}
		return out
	}
	planner := NewPlanner[string, person](reg, fetch, universe, extractors)

	pred := And{Children: []Predicate{
		Leaf{Op: OpEq, Attribute: "status", Value: value.Text("active")},
		Leaf{Op: OpGT, Attribute: "age", Value: value.Int(30)},
	}}
	plan, err := planner.plan(pred, Options{UseIndex: "status", UseIndexSet: true})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	result, err := plan.Execute()
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	got := make(map[string]bool)
	for _, k := range result.ToArray() {
		got[k] = true
	}
	if !got["p2"] || !got["p4"] || got["p3"] {
		t.Fatalf("unexpected result set: %v", got)
	}
}

func TestUseIndexHintNoSuchIndex(t *testing.T) {
	reg, records, extractors := buildRegistry(t)
	fetch := func(k string) (person, bool) { r, ok := records[k]; return r, ok }
	universe := func() []string { return nil }
	planner := NewPlanner[string, person](reg, fetch, universe, extractors)

	_, err := planner.plan(Leaf{Op: OpEq, Attribute: "name", Value: value.Text("x")}, Options{UseIndex: "name", UseIndexSet: true})
	if err != ErrNoSuchIndex {
		t.Fatalf("expected ErrNoSuchIndex, got %v", err)
	}
}

func TestDisableOptimizationReturnsFullScan(t *testing.T) {
	reg, records, extractors := buildRegistry(t)
	fetch := func(k string) (person, bool) { r, ok := records[k]; return r, ok }
	universe := func() []string {
		out := make([]string, 0, len(records))
		for k := range records {
			out = append(out, k)
		}
		return out
	}
	planner := NewPlanner[string, person](reg, fetch, universe, extractors)

	q := Query{
		Predicate: Leaf{Op: OpEq, Attribute: "status", Value: value.Text("active")},
		Sort:      &SortSpec{Attribute: "age"},
	}
	plan, err := planner.PlanQuery(q, Options{DisableOptimization: true})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Explain().Kind != "FullScan" {
		t.Fatalf("expected bare FullScan, got %s", plan.Explain().Kind)
	}
}

func TestSortUsesIndexedWalkWhenAvailable(t *testing.T) {
	reg, records, extractors := buildRegistry(t)
	fetch := func(k string) (person, bool) { r, ok := records[k]; return r, ok }
	universe := func() []string {
		out := make([]string, 0, len(records))
		for k := range records {
			out = append(out, k)
		}
		return out
	}
	planner := NewPlanner[string, person](reg, fetch, universe, extractors)

	q := Query{
		Predicate: Leaf{Op: OpEq, Attribute: "status", Value: value.Text("active")},
		Sort:      &SortSpec{Attribute: "age"},
	}
	plan, err := planner.PlanQuery(q, Options{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	explain := plan.Explain()
	if explain.Kind != "Sort" || explain.Detail != "age (indexed)" {
		t.Fatalf("expected indexed sort, got %+v", explain)
	}

	result, err := plan.Execute()
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	arr := result.ToArray()
	if len(arr) != 3 {
		t.Fatalf("expected 3 active records sorted by age, got %v", arr)
	}
	if arr[0] != "p1" || arr[1] != "p2" || arr[2] != "p4" {
		t.Fatalf("expected ascending age order [p1 p2 p4], got %v", arr)
	}
}

func TestLikeAndRegexFallbackToFilter(t *testing.T) {
	reg, records, extractors := buildRegistry(t)
	fetch := func(k string) (person, bool) { r, ok := records[k]; return r, ok }
	universe := func() []string {
		out := make([]string, 0, len(records))
		for k := range records {
			out = append(out, k)
		}
		return out
	}
	planner := NewPlanner[string, person](reg, fetch, universe, extractors)

	pred := Leaf{Op: OpLike, Attribute: "status", Pattern: "in%"}
	plan, err := planner.Plan(pred)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	result, err := plan.Execute()
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	arr := result.ToArray()
	if len(arr) != 1 || arr[0] != "p3" {
		t.Fatalf("expected [p3] for like 'in%%', got %v", arr)
	}
}

func TestCursorAndLimit(t *testing.T) {
	reg, records, extractors := buildRegistry(t)
	fetch := func(k string) (person, bool) { r, ok := records[k]; return r, ok }
	universe := func() []string {
		out := make([]string, 0, len(records))
		for k := range records {
			out = append(out, k)
		}
		return out
	}
	planner := NewPlanner[string, person](reg, fetch, universe, extractors)

	q := Query{
		Predicate: Leaf{Op: OpEq, Attribute: "status", Value: value.Text("active")},
		Sort:      &SortSpec{Attribute: "age"},
		Limit:     &LimitSpec{N: 1, Offset: 1},
	}
	plan, err := planner.PlanQuery(q, Options{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	result, err := plan.Execute()
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	arr := result.ToArray()
	if len(arr) != 1 || arr[0] != "p2" {
		t.Fatalf("expected [p2] (offset 1, limit 1 of [p1 p2 p4]), got %v", arr)
	}

	cursorQ := Query{
		Predicate: q.Predicate,
		Sort:      q.Sort,
		Cursor:    EncodeCursor(2),
	}
	cursorPlan, err := planner.PlanQuery(cursorQ, Options{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	cursorResult, err := cursorPlan.Execute()
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	arr2 := cursorResult.ToArray()
	if len(arr2) != 1 || arr2[0] != "p4" {
		t.Fatalf("expected [p4] after cursor offset 2, got %v", arr2)
	}
}
