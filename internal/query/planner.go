package query

import (
	"errors"

	"github.com/swarmguard/meshstore/internal/index"
	"github.com/swarmguard/meshstore/internal/value"
)

// ErrNoSuchIndex is returned by useIndex when the named attribute has no
// registered index.
var ErrNoSuchIndex = errors.New("query: no such index")

// ErrNoIndexAvailable is returned by forceIndexScan when the chosen plan
// degraded to FullScan.
var ErrNoIndexAvailable = errors.New("query: no index available")

// Options carries the planner's optimization hints. Precedence is
// DisableOptimization > UseIndex > ForceIndexScan.
type Options struct {
	UseIndex            string
	UseIndexSet         bool
	ForceIndexScan      bool
	DisableOptimization bool
}

// Planner builds executable plans from predicates against one map's
// IndexRegistry, record fetcher, and full key universe.
type Planner[K comparable, R any] struct {
	registry   *index.Registry[K, R]
	fetch      func(K) (R, bool)
	universe   func() []K
	extractors Extractors[R]
}

// NewPlanner constructs a Planner. extractors must contain every
// attribute name a predicate, sort spec, or Filter fallback can
// reference.
func NewPlanner[K comparable, R any](registry *index.Registry[K, R], fetch func(K) (R, bool), universe func() []K, extractors Extractors[R]) *Planner[K, R] {
	return &Planner[K, R]{registry: registry, fetch: fetch, universe: universe, extractors: extractors}
}

// Plan builds a plan for pred alone (no sort/limit/cursor), applying no
// hints.
func (p *Planner[K, R]) Plan(pred Predicate) (Plan[K], error) {
	return p.plan(pred, Options{})
}

// PlanQuery builds the full plan for q, honoring hints and wrapping the
// predicate plan with Sort/Limit/Cursor as requested. disableOptimization
// ignores every other hint and all of Sort/Limit/Cursor, returning a bare
// FullScan.
func (p *Planner[K, R]) PlanQuery(q Query, opts Options) (Plan[K], error) {
	if opts.DisableOptimization {
		return &fullScanPlan[K]{universe: p.universe}, nil
	}

	base, err := p.plan(q.Predicate, opts)
	if err != nil {
		return nil, err
	}

	plan := base
	if q.Sort != nil {
		plan = p.wrapSort(plan, *q.Sort)
	}
	if q.Limit != nil {
		plan = &limitPlan[K]{child: plan, spec: *q.Limit}
	}
	if q.Cursor != "" {
		plan = &cursorPlan[K]{child: plan, token: q.Cursor}
	}
	return plan, nil
}

func (p *Planner[K, R]) wrapSort(child Plan[K], spec SortSpec) Plan[K] {
	var navIdx *index.NavigableIndex[K, R]
	for _, idx := range p.registry.Indexes(spec.Attribute) {
		if n, ok := idx.(*index.NavigableIndex[K, R]); ok {
			navIdx = n
			break
		}
	}
	return &sortPlan[K, R]{
		child:        child,
		spec:         spec,
		orderedIndex: navIdx,
		fetch:        p.fetch,
		extractor:    p.extractors[spec.Attribute],
	}
}

// plan implements the core index-selection rules, plus the
// useIndex/forceIndexScan hints.
func (p *Planner[K, R]) plan(pred Predicate, opts Options) (Plan[K], error) {
	if opts.UseIndexSet {
		return p.planWithForcedIndex(pred, opts.UseIndex, opts.ForceIndexScan)
	}
	plan, err := p.planNode(pred)
	if err != nil {
		return nil, err
	}
	if opts.ForceIndexScan && isFullScanRoot(plan) {
		return nil, ErrNoIndexAvailable
	}
	return plan, nil
}

// planWithForcedIndex extracts the child predicate matching attrName
// out of a top-level And (or uses pred directly if it is a matching
// Leaf), forces an IndexScan on the lowest-cost index for that
// attribute, and Filters everything else against it. If pred has no
// component on attrName, it degrades to a has-scan filtered by pred.
func (p *Planner[K, R]) planWithForcedIndex(pred Predicate, attrName string, forceIndexScan bool) (Plan[K], error) {
	candidates := p.registry.FindBestIndex(attrName, index.OpHas)
	if len(candidates) == 0 {
		candidates = p.registry.Indexes(attrName)
	}
	if len(candidates) == 0 {
		return nil, ErrNoSuchIndex
	}
	idx := candidates[0]
	for _, c := range candidates {
		if c.RetrievalCost() < idx.RetrievalCost() {
			idx = c
		}
	}

	leaf, rest, found := extractLeafFor(pred, attrName)
	var base Plan[K]
	if found {
		q, mapped := leafToIndexQuery(leaf)
		if !mapped || !idx.SupportsQuery(q.Op) {
			base = &indexScanPlan[K, R]{idx: idx, q: index.Query{Op: index.OpHas}}
		} else {
			base = &indexScanPlan[K, R]{idx: idx, q: q}
		}
	} else {
		base = &indexScanPlan[K, R]{idx: idx, q: index.Query{Op: index.OpHas}}
		rest = pred
	}

	if rest == nil {
		return base, nil
	}
	return &filterPlan[K, R]{child: base, predicate: rest, fetch: p.fetch, extractors: p.extractors}, nil
}

// extractLeafFor pulls the Leaf predicate on attrName out of pred (pred
// itself, or a top-level And child), returning the remaining predicate
// to apply as a Filter (nil if nothing remains).
func extractLeafFor(pred Predicate, attrName string) (Leaf, Predicate, bool) {
	switch p := pred.(type) {
	case Leaf:
		if p.Attribute == attrName {
			return p, nil, true
		}
		return Leaf{}, pred, false
	case And:
		for i, c := range p.Children {
			if leaf, ok := c.(Leaf); ok && leaf.Attribute == attrName {
				remaining := make([]Predicate, 0, len(p.Children)-1)
				remaining = append(remaining, p.Children[:i]...)
				remaining = append(remaining, p.Children[i+1:]...)
				if len(remaining) == 0 {
					return leaf, nil, true
				}
				return leaf, And{Children: remaining}, true
			}
		}
		return Leaf{}, pred, false
	default:
		return Leaf{}, pred, false
	}
}

func isFullScanRoot[K comparable](plan Plan[K]) bool {
	_, ok := plan.(*fullScanPlan[K])
	return ok
}

// isFullScanFiltered reports whether plan is a Filter wrapping a bare
// FullScan (the degraded shape planLeaf/planAnd/planOr produce when no
// index backs a predicate).
func isFullScanFiltered[K comparable, R any](plan Plan[K]) bool {
	f, ok := plan.(*filterPlan[K, R])
	if !ok {
		return false
	}
	return isFullScanRoot(f.child)
}

func (p *Planner[K, R]) planNode(pred Predicate) (Plan[K], error) {
	switch pr := pred.(type) {
	case Leaf:
		return p.planLeaf(pr)
	case And:
		return p.planAnd(pr)
	case Or:
		return p.planOr(pr)
	case Not:
		child, err := p.planNode(pr.Child)
		if err != nil {
			return nil, err
		}
		return &notPlan[K]{child: child, universe: p.universe}, nil
	default:
		return &fullScanPlan[K]{universe: p.universe}, nil
	}
}

func (p *Planner[K, R]) planLeaf(leaf Leaf) (Plan[K], error) {
	q, mapped := leafToIndexQuery(leaf)
	if mapped {
		candidates := p.registry.FindBestIndex(leaf.Attribute, q.Op)
		if len(candidates) > 0 {
			return &indexScanPlan[K, R]{idx: candidates[0], q: q}, nil
		}
	}
	// FTS surface ops degrade to an inverted-index contains retrieval
	// when available, with exact semantics re-checked by Filter.
	if ftsQuery, ok := ftsToContains(leaf); ok {
		candidates := p.registry.FindBestIndex(leaf.Attribute, index.OpContains)
		if len(candidates) > 0 {
			base := &indexScanPlan[K, R]{idx: candidates[0], q: ftsQuery}
			return &filterPlan[K, R]{child: base, predicate: leaf, fetch: p.fetch, extractors: p.extractors}, nil
		}
	}
	full := &fullScanPlan[K]{universe: p.universe}
	return &filterPlan[K, R]{child: full, predicate: leaf, fetch: p.fetch, extractors: p.extractors}, nil
}

func (p *Planner[K, R]) planAnd(and And) (Plan[K], error) {
	var indexed []Plan[K]
	var unindexed []Predicate
	for _, c := range and.Children {
		leaf, ok := c.(Leaf)
		if !ok {
			// nested And/Or/Not: plan recursively; if it resolves to an
			// IndexScan/And/Or of indexes (not a bare FullScan), keep it
			// as an indexed child, else fall back to filtering.
			childPlan, err := p.planNode(c)
			if err != nil {
				return nil, err
			}
			if isFullScanRoot(childPlan) || isFullScanFiltered[K, R](childPlan) {
				unindexed = append(unindexed, c)
			} else {
				indexed = append(indexed, childPlan)
			}
			continue
		}
		q, mapped := leafToIndexQuery(leaf)
		if !mapped {
			unindexed = append(unindexed, leaf)
			continue
		}
		candidates := p.registry.FindBestIndex(leaf.Attribute, q.Op)
		if len(candidates) == 0 {
			unindexed = append(unindexed, leaf)
			continue
		}
		indexed = append(indexed, &indexScanPlan[K, R]{idx: candidates[0], q: q})
	}

	if len(indexed) == 0 {
		return &filterPlan[K, R]{child: &fullScanPlan[K]{universe: p.universe}, predicate: and, fetch: p.fetch, extractors: p.extractors}, nil
	}

	var base Plan[K]
	if len(indexed) == 1 {
		base = indexed[0]
	} else {
		base = &andPlan[K]{children: indexed}
	}
	if len(unindexed) == 0 {
		return base, nil
	}
	remaining := Predicate(And{Children: unindexed})
	if len(unindexed) == 1 {
		remaining = unindexed[0]
	}
	return &filterPlan[K, R]{child: base, predicate: remaining, fetch: p.fetch, extractors: p.extractors}, nil
}

func (p *Planner[K, R]) planOr(or Or) (Plan[K], error) {
	children := make([]Plan[K], len(or.Children))
	allIndexed := true
	for i, c := range or.Children {
		cp, err := p.planNode(c)
		if err != nil {
			return nil, err
		}
		children[i] = cp
		if isFullScanRoot(cp) || isFullScanFiltered[K, R](cp) {
			allIndexed = false
		}
	}
	if !allIndexed {
		return &filterPlan[K, R]{child: &fullScanPlan[K]{universe: p.universe}, predicate: or, fetch: p.fetch, extractors: p.extractors}, nil
	}
	return &orPlan[K]{children: children}, nil
}

// leafToIndexQuery maps a predicate Leaf to the index.Query vocabulary
// directly supported by an index, when a 1:1 mapping exists.
func leafToIndexQuery(leaf Leaf) (index.Query, bool) {
	switch leaf.Op {
	case OpEq:
		return index.Query{Op: index.OpEqual, Value: leaf.Value}, true
	case OpIn:
		return index.Query{Op: index.OpIn, Values: leaf.Values}, true
	case OpGT:
		return index.Query{Op: index.OpGT, Value: leaf.Value}, true
	case OpGTE:
		return index.Query{Op: index.OpGTE, Value: leaf.Value}, true
	case OpLT:
		return index.Query{Op: index.OpLT, Value: leaf.Value}, true
	case OpLTE:
		return index.Query{Op: index.OpLTE, Value: leaf.Value}, true
	case OpBetween:
		return index.Query{Op: index.OpBetween, From: leaf.From, To: leaf.To, FromInclusive: leaf.FromInclusive, ToInclusive: leaf.ToInclusive}, true
	case OpContainsAll:
		return index.Query{Op: index.OpContainsAll, Values: leaf.Values}, true
	case OpContainsAny:
		return index.Query{Op: index.OpContainsAny, Values: leaf.Values}, true
	case OpContains:
		return index.Query{Op: index.OpContains, Value: value.Text(leaf.Pattern)}, true
	default:
		return index.Query{}, false
	}
}

// ftsToContains maps match/matchPrefix/matchPhrase surface ops onto an
// inverted-index contains retrieval used as a candidate-generation step;
// the Filter wrapper re-checks exact FTS semantics.
func ftsToContains(leaf Leaf) (index.Query, bool) {
	switch leaf.Op {
	case OpMatch, OpMatchPrefix, OpMatchPhrase:
		return index.Query{Op: index.OpContains, Value: value.Text(leaf.Pattern)}, true
	default:
		return index.Query{}, false
	}
}

// ExplainQuery returns the plan tree and cost breakdown for pred.
func (p *Planner[K, R]) ExplainQuery(pred Predicate) (ExplainNode, error) {
	plan, err := p.Plan(pred)
	if err != nil {
		return ExplainNode{}, err
	}
	return plan.Explain(), nil
}
