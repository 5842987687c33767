package query

import (
	"sort"

	"github.com/swarmguard/meshstore/internal/attribute"
	"github.com/swarmguard/meshstore/internal/index"
	"github.com/swarmguard/meshstore/internal/resultset"
	"github.com/swarmguard/meshstore/internal/value"
)

// fullScanCost is the nominal retrieval cost charged to a plan node with
// no supporting index, so the cost model always prefers an IndexScan
// when one exists.
const fullScanCost = 1000

// ExplainNode is the plan tree returned by ExplainQuery: kind, a
// human-readable detail, the node's own + subtree cost, and children.
type ExplainNode struct {
	Kind     string
	Detail   string
	Cost     int
	Children []ExplainNode
}

// Plan is a node in the executable plan tree.
type Plan[K comparable] interface {
	Execute() (resultset.ResultSet[K], error)
	Explain() ExplainNode
}

// --- IndexScan ---

type indexScanPlan[K comparable, R any] struct {
	idx index.Index[K, R]
	q   index.Query
}

func (p *indexScanPlan[K, R]) Execute() (resultset.ResultSet[K], error) { return p.idx.Retrieve(p.q) }

func (p *indexScanPlan[K, R]) Explain() ExplainNode {
	return ExplainNode{Kind: "IndexScan", Detail: p.idx.Attribute() + "/" + p.idx.Type(), Cost: p.idx.RetrievalCost()}
}

// --- FullScan ---

type fullScanPlan[K comparable] struct {
	universe func() []K
}

func (p *fullScanPlan[K]) Execute() (resultset.ResultSet[K], error) {
	return resultset.NewMapSet(p.universe()), nil
}

func (p *fullScanPlan[K]) Explain() ExplainNode {
	return ExplainNode{Kind: "FullScan", Cost: fullScanCost}
}

// --- Filter: re-check a predicate the planner could not push into an
// index, against a child plan's keys. ---

type filterPlan[K comparable, R any] struct {
	child      Plan[K]
	predicate  Predicate
	fetch      func(K) (R, bool)
	extractors Extractors[R]
}

func (p *filterPlan[K, R]) Execute() (resultset.ResultSet[K], error) {
	childSet, err := p.child.Execute()
	if err != nil {
		return nil, err
	}
	var kept []K
	it := childSet.Iterator()
	for {
		k, ok := it.Next()
		if !ok {
			break
		}
		rec, ok := p.fetch(k)
		if !ok {
			continue
		}
		if Evaluate(p.predicate, rec, p.extractors) {
			kept = append(kept, k)
		}
	}
	return resultset.NewMapSet(kept), nil
}

func (p *filterPlan[K, R]) Explain() ExplainNode {
	child := p.child.Explain()
	return ExplainNode{Kind: "Filter", Cost: child.Cost, Children: []ExplainNode{child}}
}

// --- And: intersect child result sets. ---

type andPlan[K comparable] struct {
	children []Plan[K]
}

func (p *andPlan[K]) Execute() (resultset.ResultSet[K], error) {
	sets := make([]resultset.ResultSet[K], 0, len(p.children))
	for _, c := range p.children {
		s, err := c.Execute()
		if err != nil {
			return nil, err
		}
		sets = append(sets, s)
	}
	return resultset.Intersect(sets...), nil
}

func (p *andPlan[K]) Explain() ExplainNode {
	children := make([]ExplainNode, len(p.children))
	cost := 0
	for i, c := range p.children {
		children[i] = c.Explain()
		cost += children[i].Cost
	}
	return ExplainNode{Kind: "And", Cost: cost, Children: children}
}

// --- Or: union child result sets. ---

type orPlan[K comparable] struct {
	children []Plan[K]
}

func (p *orPlan[K]) Execute() (resultset.ResultSet[K], error) {
	sets := make([]resultset.ResultSet[K], 0, len(p.children))
	for _, c := range p.children {
		s, err := c.Execute()
		if err != nil {
			return nil, err
		}
		sets = append(sets, s)
	}
	return resultset.Union(sets...), nil
}

func (p *orPlan[K]) Explain() ExplainNode {
	children := make([]ExplainNode, len(p.children))
	cost := 0
	for i, c := range p.children {
		children[i] = c.Explain()
		cost += children[i].Cost
	}
	return ExplainNode{Kind: "Or", Cost: cost, Children: children}
}

// --- Not: complement within the universe. ---

type notPlan[K comparable] struct {
	child    Plan[K]
	universe func() []K
}

func (p *notPlan[K]) Execute() (resultset.ResultSet[K], error) {
	childSet, err := p.child.Execute()
	if err != nil {
		return nil, err
	}
	universe := resultset.NewMapSet(p.universe())
	return resultset.Subtract[K](universe, childSet), nil
}

func (p *notPlan[K]) Explain() ExplainNode {
	child := p.child.Explain()
	return ExplainNode{Kind: "Not", Cost: child.Cost + fullScanCost, Children: []ExplainNode{child}}
}

// --- Sort: order by an attribute, using an indexed navigable walk when
// available and a buffered in-memory sort otherwise. ---

type sortPlan[K comparable, R any] struct {
	child        Plan[K]
	spec         SortSpec
	orderedIndex *index.NavigableIndex[K, R]
	fetch        func(K) (R, bool)
	extractor    attribute.Extractor[R]
}

func (p *sortPlan[K, R]) Execute() (resultset.ResultSet[K], error) {
	childSet, err := p.child.Execute()
	if err != nil {
		return nil, err
	}
	eligible := make(map[K]struct{}, childSet.Size())
	for _, k := range childSet.ToArray() {
		eligible[k] = struct{}{}
	}

	if p.orderedIndex != nil {
		ordered := p.orderedIndex.OrderedKeys(p.spec.Descending)
		out := make([]K, 0, len(eligible))
		for _, k := range ordered {
			if _, ok := eligible[k]; ok {
				out = append(out, k)
			}
		}
		return resultset.NewSortedSet(out, childSet.RetrievalCost()), nil
	}

	type kv struct {
		key K
		val value.Value
	}
	items := make([]kv, 0, len(eligible))
	for k := range eligible {
		v := value.Null()
		if rec, ok := p.fetch(k); ok {
			if p.extractor != nil {
				if vals := p.extractor.Extract(rec); len(vals) > 0 {
					v = vals[0]
				}
			}
		}
		items = append(items, kv{key: k, val: v})
	}
	sort.SliceStable(items, func(i, j int) bool {
		c := compareSortValue(items[i].val, items[j].val)
		if p.spec.Descending {
			return c > 0
		}
		return c < 0
	})
	out := make([]K, len(items))
	for i, it := range items {
		out[i] = it.key
	}
	return resultset.NewSortedSet(out, childSet.RetrievalCost()), nil
}

func (p *sortPlan[K, R]) Explain() ExplainNode {
	child := p.child.Explain()
	detail := p.spec.Attribute
	if p.orderedIndex != nil {
		detail += " (indexed)"
	}
	return ExplainNode{Kind: "Sort", Detail: detail, Cost: child.Cost, Children: []ExplainNode{child}}
}

// --- Limit: applied after sort. ---

type limitPlan[K comparable] struct {
	child Plan[K]
	spec  LimitSpec
}

func (p *limitPlan[K]) Execute() (resultset.ResultSet[K], error) {
	childSet, err := p.child.Execute()
	if err != nil {
		return nil, err
	}
	arr := childSet.ToArray()
	offset := p.spec.Offset
	if offset > len(arr) {
		offset = len(arr)
	}
	arr = arr[offset:]
	if p.spec.N > 0 && p.spec.N < len(arr) {
		arr = arr[:p.spec.N]
	}
	return resultset.NewSortedSet(arr, childSet.RetrievalCost()), nil
}

func (p *limitPlan[K]) Explain() ExplainNode {
	child := p.child.Explain()
	return ExplainNode{Kind: "Limit", Cost: child.Cost, Children: []ExplainNode{child}}
}

// --- Cursor: opaque base64url offset resumption. ---

type cursorPlan[K comparable] struct {
	child Plan[K]
	token string
}

func (p *cursorPlan[K]) Execute() (resultset.ResultSet[K], error) {
	offset, err := DecodeCursor(p.token)
	if err != nil {
		return nil, err
	}
	childSet, err := p.child.Execute()
	if err != nil {
		return nil, err
	}
	arr := childSet.ToArray()
	if offset > len(arr) {
		offset = len(arr)
	}
	return resultset.NewSortedSet(arr[offset:], childSet.RetrievalCost()), nil
}

func (p *cursorPlan[K]) Explain() ExplainNode {
	child := p.child.Explain()
	return ExplainNode{Kind: "Cursor", Cost: child.Cost, Children: []ExplainNode{child}}
}
