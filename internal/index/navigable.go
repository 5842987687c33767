package index

import (
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/btree"

	"github.com/swarmguard/meshstore/internal/attribute"
	"github.com/swarmguard/meshstore/internal/resultset"
	"github.com/swarmguard/meshstore/internal/value"
)

// navigableRetrievalCost is the constant retrieval cost a navigable
// index reports to the planner.
const navigableRetrievalCost = 40

const btreeDegree = 32

// Comparator orders two attribute values; 0 means equal. The default
// comparator is numeric for numbers and lexicographic for strings.
type Comparator func(a, b value.Value) int

// DefaultComparator implements the default value ordering.
func DefaultComparator(a, b value.Value) int {
	if af, aok := a.AsFloat64(); aok {
		if bf, bok := b.AsFloat64(); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(value.Stringify(a), value.Stringify(b))
}

type navItem struct {
	val value.Value
	ids *roaring.Bitmap
}

// NavigableIndex supports equal/in/has/gt/gte/lt/lte/between over an
// ordered attrValue -> Set<Key> structure.
type NavigableIndex[K comparable, R any] struct {
	mu        sync.RWMutex
	attr      attribute.Extractor[R]
	ids       *resultset.IDTable[K]
	cmp       Comparator
	tree      *btree.BTreeG[*navItem]
	allKeys   *roaring.Bitmap
	keyValues map[K][]value.Value
}

// NewNavigableIndex constructs a NavigableIndex. A nil cmp uses
// DefaultComparator.
func NewNavigableIndex[K comparable, R any](attr attribute.Extractor[R], ids *resultset.IDTable[K], cmp Comparator) *NavigableIndex[K, R] {
	if cmp == nil {
		cmp = DefaultComparator
	}
	n := &NavigableIndex[K, R]{
		attr:      attr,
		ids:       ids,
		cmp:       cmp,
		allKeys:   roaring.New(),
		keyValues: make(map[K][]value.Value),
	}
	n.tree = btree.NewG(btreeDegree, func(a, b *navItem) bool { return cmp(a.val, b.val) < 0 })
	return n
}

func (n *NavigableIndex[K, R]) Type() string       { return "navigable" }
func (n *NavigableIndex[K, R]) Attribute() string  { return n.attr.Name() }
func (n *NavigableIndex[K, R]) RetrievalCost() int { return navigableRetrievalCost }

func (n *NavigableIndex[K, R]) SupportsQuery(op Op) bool {
	switch op {
	case OpEqual, OpIn, OpHas, OpGT, OpGTE, OpLT, OpLTE, OpBetween:
		return true
	}
	return false
}

func (n *NavigableIndex[K, R]) bucket(val value.Value) *navItem {
	probe := &navItem{val: val}
	if existing, ok := n.tree.Get(probe); ok {
		return existing
	}
	item := &navItem{val: val, ids: roaring.New()}
	n.tree.ReplaceOrInsert(item)
	return item
}

func (n *NavigableIndex[K, R]) Add(key K, record R) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.addLocked(key, record)
}

func (n *NavigableIndex[K, R]) addLocked(key K, record R) {
	vals := extractValues(n.attr, record)
	if len(vals) == 0 {
		return
	}
	id := n.ids.IDFor(key)
	n.allKeys.Add(id)
	for _, v := range vals {
		already := false
		for _, ev := range n.keyValues[key] {
			if n.cmp(ev, v) == 0 {
				already = true
				break
			}
		}
		if already {
			continue
		}
		n.bucket(v).ids.Add(id)
		n.keyValues[key] = append(n.keyValues[key], v)
	}
}

func (n *NavigableIndex[K, R]) removeLocked(key K, record R) {
	vals := extractValues(n.attr, record)
	if len(vals) == 0 {
		return
	}
	id, ok := n.ids.LookupID(key)
	if !ok {
		return
	}
	for _, v := range vals {
		probe := &navItem{val: v}
		if item, ok := n.tree.Get(probe); ok {
			item.ids.Remove(id)
			if item.ids.IsEmpty() {
				n.tree.Delete(probe)
			}
		}
	}
	delete(n.keyValues, key)
	n.allKeys.Remove(id)
}

func (n *NavigableIndex[K, R]) Remove(key K, record R) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.removeLocked(key, record)
}

func (n *NavigableIndex[K, R]) Update(key K, oldRecord, newRecord *R) {
	oldVals := extractValues(n.attr, *oldRecord)
	newVals := extractValues(n.attr, *newRecord)
	if sameValueSet(n.cmp, oldVals, newVals) {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.removeLocked(key, *oldRecord)
	n.addLocked(key, *newRecord)
}

func (n *NavigableIndex[K, R]) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tree = btree.NewG(btreeDegree, func(a, b *navItem) bool { return n.cmp(a.val, b.val) < 0 })
	n.allKeys = roaring.New()
	n.keyValues = make(map[K][]value.Value)
}

func (n *NavigableIndex[K, R]) Retrieve(q Query) (resultset.ResultSet[K], error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	switch q.Op {
	case OpEqual:
		probe := &navItem{val: q.Value}
		if item, ok := n.tree.Get(probe); ok {
			return resultset.NewBitmapSet(n.ids, item.ids.Clone(), navigableRetrievalCost), nil
		}
		return resultset.NewBitmapSet(n.ids, roaring.New(), navigableRetrievalCost), nil
	case OpIn:
		acc := roaring.New()
		for _, v := range q.Values {
			probe := &navItem{val: v}
			if item, ok := n.tree.Get(probe); ok {
				acc.Or(item.ids)
			}
		}
		return resultset.NewBitmapSet(n.ids, acc, navigableRetrievalCost), nil
	case OpHas:
		return resultset.NewBitmapSet(n.ids, n.allKeys.Clone(), navigableRetrievalCost), nil
	case OpGT, OpGTE, OpLT, OpLTE, OpBetween:
		return n.rangeQuery(q), nil
	default:
		return nil, ErrUnsupportedQueryType
	}
}

// rangeQuery returns a lazy result set: estimated size is allKeys/2
// until materialized.
func (n *NavigableIndex[K, R]) rangeQuery(q Query) resultset.ResultSet[K] {
	estimate := int(n.allKeys.GetCardinality()) / 2
	gen := func() []K {
		n.mu.RLock()
		defer n.mu.RUnlock()
		acc := roaring.New()
		visit := func(item *navItem) bool {
			acc.Or(item.ids)
			return true
		}
		switch q.Op {
		case OpGT:
			n.tree.AscendGreaterOrEqual(&navItem{val: q.Value}, func(item *navItem) bool {
				if n.cmp(item.val, q.Value) == 0 {
					return true
				}
				return visit(item)
			})
		case OpGTE:
			n.tree.AscendGreaterOrEqual(&navItem{val: q.Value}, visit)
		case OpLT:
			n.tree.Ascend(func(item *navItem) bool {
				if n.cmp(item.val, q.Value) >= 0 {
					return false
				}
				return visit(item)
			})
		case OpLTE:
			n.tree.Ascend(func(item *navItem) bool {
				if n.cmp(item.val, q.Value) > 0 {
					return false
				}
				return visit(item)
			})
		case OpBetween:
			n.tree.AscendGreaterOrEqual(&navItem{val: q.From}, func(item *navItem) bool {
				cFrom := n.cmp(item.val, q.From)
				if cFrom == 0 && !q.FromInclusive {
					return true
				}
				cTo := n.cmp(item.val, q.To)
				if cTo > 0 || (cTo == 0 && !q.ToInclusive) {
					return false
				}
				return visit(item)
			})
		}
		out := make([]K, 0, acc.GetCardinality())
		it := acc.Iterator()
		for it.HasNext() {
			if k, ok := n.ids.KeyFor(it.Next()); ok {
				out = append(out, k)
			}
		}
		return out
	}
	return resultset.NewLazySet(gen, estimate, navigableRetrievalCost)
}

// GetMinValue returns the smallest indexed attribute value.
func (n *NavigableIndex[K, R]) GetMinValue() (value.Value, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if item, ok := n.tree.Min(); ok {
		return item.val, true
	}
	return value.Value{}, false
}

// GetMaxValue returns the largest indexed attribute value.
func (n *NavigableIndex[K, R]) GetMaxValue() (value.Value, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if item, ok := n.tree.Max(); ok {
		return item.val, true
	}
	return value.Value{}, false
}

// OrderedKeys returns every key with at least one indexed value, ordered
// ascending (or descending) by that value; a key contributing multiple
// values appears once, at its first encounter in the walk direction.
func (n *NavigableIndex[K, R]) OrderedKeys(descending bool) []K {
	n.mu.RLock()
	defer n.mu.RUnlock()
	seen := make(map[K]struct{}, n.allKeys.GetCardinality())
	out := make([]K, 0, n.allKeys.GetCardinality())
	visit := func(item *navItem) bool {
		it := item.ids.Iterator()
		for it.HasNext() {
			id := it.Next()
			k, ok := n.ids.KeyFor(id)
			if !ok {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
		return true
	}
	if descending {
		n.tree.Descend(visit)
	} else {
		n.tree.Ascend(visit)
	}
	return out
}

func (n *NavigableIndex[K, R]) Stats() Stats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	total := 0
	distinct := 0
	n.tree.Ascend(func(item *navItem) bool {
		distinct++
		total += int(item.ids.GetCardinality())
		return true
	})
	avg := 0.0
	if distinct > 0 {
		avg = float64(total) / float64(distinct)
	}
	return Stats{DistinctValues: distinct, TotalEntries: total, AvgEntriesPerValue: avg}
}

func sameValueSet(cmp Comparator, a, b []value.Value) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, av := range a {
		found := false
		for i, bv := range b {
			if used[i] {
				continue
			}
			if cmp(av, bv) == 0 {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
