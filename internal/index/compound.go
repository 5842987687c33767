package index

import (
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/swarmguard/meshstore/internal/attribute"
	"github.com/swarmguard/meshstore/internal/resultset"
	"github.com/swarmguard/meshstore/internal/value"
)

// compoundRetrievalCost mirrors HashIndex's cost: a compound index is a
// hash index over a tuple of attribute values.
const compoundRetrievalCost = hashRetrievalCost

// CompoundIndex is a hash index over the tuple of values of a sorted
// attribute set, created only by the adaptive advisor from tracked
// AND-query patterns.
type CompoundIndex[K comparable, R any] struct {
	mu       sync.RWMutex
	attrs    []attribute.Extractor[R]
	attrName string // joined name, e.g. "status+age"
	ids      *resultset.IDTable[K]
	postings map[string]*roaring.Bitmap
	allKeys  *roaring.Bitmap
	keyTuple map[K]string
}

// NewCompoundIndex builds a compound index over attrs, in the order the
// advisor observed them grouped in a tracked AND pattern.
func NewCompoundIndex[K comparable, R any](attrs []attribute.Extractor[R], ids *resultset.IDTable[K]) *CompoundIndex[K, R] {
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Name()
	}
	return &CompoundIndex[K, R]{
		attrs:    attrs,
		attrName: strings.Join(names, "+"),
		ids:      ids,
		postings: make(map[string]*roaring.Bitmap),
		allKeys:  roaring.New(),
		keyTuple: make(map[K]string),
	}
}

func (c *CompoundIndex[K, R]) Type() string       { return "compound" }
func (c *CompoundIndex[K, R]) Attribute() string  { return c.attrName }
func (c *CompoundIndex[K, R]) RetrievalCost() int { return compoundRetrievalCost }

func (c *CompoundIndex[K, R]) SupportsQuery(op Op) bool { return op == OpEqual }

// tupleKey builds the compound posting key; a record must contribute
// exactly one value per attribute to participate (nil/missing skips it).
func (c *CompoundIndex[K, R]) tupleKey(record R) (string, bool) {
	parts := make([]string, len(c.attrs))
	for i, a := range c.attrs {
		vals := extractValues(a, record)
		if len(vals) == 0 {
			return "", false
		}
		parts[i] = value.Stringify(vals[0])
	}
	return strings.Join(parts, "\x1f"), true
}

// TupleValue builds the compound equality probe key callers use to query
// by (e.g. from a planner matching an AND over all compound attributes).
func (c *CompoundIndex[K, R]) TupleValue(values []value.Value) value.Value {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = value.Stringify(v)
	}
	return value.Text(strings.Join(parts, "\x1f"))
}

func (c *CompoundIndex[K, R]) Add(key K, record R) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(key, record)
}

func (c *CompoundIndex[K, R]) addLocked(key K, record R) {
	tuple, ok := c.tupleKey(record)
	if !ok {
		return
	}
	id := c.ids.IDFor(key)
	c.allKeys.Add(id)
	bm := c.postings[tuple]
	if bm == nil {
		bm = roaring.New()
		c.postings[tuple] = bm
	}
	bm.Add(id)
	c.keyTuple[key] = tuple
}

func (c *CompoundIndex[K, R]) removeLocked(key K, _ R) {
	id, ok := c.ids.LookupID(key)
	if !ok {
		return
	}
	tuple, ok := c.keyTuple[key]
	if !ok {
		return
	}
	if bm, ok := c.postings[tuple]; ok {
		bm.Remove(id)
		if bm.IsEmpty() {
			delete(c.postings, tuple)
		}
	}
	delete(c.keyTuple, key)
	c.allKeys.Remove(id)
}

func (c *CompoundIndex[K, R]) Remove(key K, record R) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key, record)
}

func (c *CompoundIndex[K, R]) Update(key K, oldRecord, newRecord *R) {
	oldTuple, oldOK := c.tupleKey(*oldRecord)
	newTuple, newOK := c.tupleKey(*newRecord)
	if oldOK == newOK && oldTuple == newTuple {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key, *oldRecord)
	c.addLocked(key, *newRecord)
}

func (c *CompoundIndex[K, R]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.postings = make(map[string]*roaring.Bitmap)
	c.allKeys = roaring.New()
	c.keyTuple = make(map[K]string)
}

func (c *CompoundIndex[K, R]) Retrieve(q Query) (resultset.ResultSet[K], error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch q.Op {
	case OpEqual:
		s, _ := q.Value.Text()
		bm := c.postings[s]
		return resultset.NewBitmapSet(c.ids, cloneOrEmpty(bm), compoundRetrievalCost), nil
	default:
		return nil, ErrUnsupportedQueryType
	}
}

func (c *CompoundIndex[K, R]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := 0
	for _, bm := range c.postings {
		total += int(bm.GetCardinality())
	}
	avg := 0.0
	if len(c.postings) > 0 {
		avg = float64(total) / float64(len(c.postings))
	}
	return Stats{DistinctValues: len(c.postings), TotalEntries: total, AvgEntriesPerValue: avg}
}
