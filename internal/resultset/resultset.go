// Package resultset implements the abstract result-set container: a
// family of materialized, lazy, and sorted shapes, each exposing
// size/contains/isEmpty/toArray/iterator/retrievalCost/mergeCost for the
// query planner's cost model.
package resultset

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// ResultSet is the planner-facing contract every plan node's output
// implements.
type ResultSet[K comparable] interface {
	Size() int
	Contains(k K) bool
	IsEmpty() bool
	ToArray() []K
	Iterator() Iterator[K]
	RetrievalCost() int
	MergeCost() int
}

// Iterator yields keys one at a time.
type Iterator[K comparable] interface {
	Next() (K, bool)
}

type sliceIterator[K comparable] struct {
	items []K
	pos   int
}

func (it *sliceIterator[K]) Next() (K, bool) {
	if it.pos >= len(it.items) {
		var zero K
		return zero, false
	}
	v := it.items[it.pos]
	it.pos++
	return v, true
}

// --- Materialized set: plain map-backed, used for universes, Not, and
// composed sets that are not bitmap-addressable. ---

// MapSet is an O(1) size/contains materialized result set.
type MapSet[K comparable] struct {
	items map[K]struct{}
	cost  int
}

// NewMapSet builds a MapSet from a slice of keys.
func NewMapSet[K comparable](keys []K) *MapSet[K] {
	m := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return &MapSet[K]{items: m}
}

// NewMapSetFromSet wraps an existing map without copying.
func NewMapSetFromSet[K comparable](m map[K]struct{}) *MapSet[K] {
	return &MapSet[K]{items: m}
}

func (s *MapSet[K]) Size() int        { return len(s.items) }
func (s *MapSet[K]) IsEmpty() bool    { return len(s.items) == 0 }
func (s *MapSet[K]) Contains(k K) bool {
	_, ok := s.items[k]
	return ok
}
func (s *MapSet[K]) ToArray() []K {
	out := make([]K, 0, len(s.items))
	for k := range s.items {
		out = append(out, k)
	}
	return out
}
func (s *MapSet[K]) Iterator() Iterator[K] { return &sliceIterator[K]{items: s.ToArray()} }
func (s *MapSet[K]) RetrievalCost() int    { return 5 }
func (s *MapSet[K]) MergeCost() int        { return len(s.items) }

// --- Materialized set: roaring-bitmap-backed, used by HashIndex and
// InvertedIndex postings so AND/OR/NOT over large posting lists run as
// bitmap ops instead of Go map churn. ---

// BitmapSet is a roaring-bitmap-backed materialized result set sharing
// an IDTable with the index(es) that produced it.
type BitmapSet[K comparable] struct {
	ids    *IDTable[K]
	bitmap *roaring.Bitmap
	cost   int
}

// NewBitmapSet wraps a bitmap of ids that must all be registered in ids.
func NewBitmapSet[K comparable](ids *IDTable[K], bitmap *roaring.Bitmap, retrievalCost int) *BitmapSet[K] {
	if bitmap == nil {
		bitmap = roaring.New()
	}
	return &BitmapSet[K]{ids: ids, bitmap: bitmap, cost: retrievalCost}
}

func (s *BitmapSet[K]) Size() int     { return int(s.bitmap.GetCardinality()) }
func (s *BitmapSet[K]) IsEmpty() bool { return s.bitmap.IsEmpty() }
func (s *BitmapSet[K]) Contains(k K) bool {
	id, ok := s.ids.LookupID(k)
	if !ok {
		return false
	}
	return s.bitmap.Contains(id)
}
func (s *BitmapSet[K]) ToArray() []K {
	out := make([]K, 0, s.bitmap.GetCardinality())
	it := s.bitmap.Iterator()
	for it.HasNext() {
		id := it.Next()
		if k, ok := s.ids.KeyFor(id); ok {
			out = append(out, k)
		}
	}
	return out
}
func (s *BitmapSet[K]) Iterator() Iterator[K] { return &sliceIterator[K]{items: s.ToArray()} }
func (s *BitmapSet[K]) RetrievalCost() int    { return s.cost }
func (s *BitmapSet[K]) MergeCost() int        { return int(s.bitmap.GetCardinality()) }

// Bitmap exposes the underlying roaring bitmap for planner-level
// intersection/union fast paths when both operands share an IDTable.
func (s *BitmapSet[K]) Bitmap() *roaring.Bitmap { return s.bitmap }

// IDs exposes the shared id table so the planner can detect whether two
// BitmapSets are fast-path compatible.
func (s *BitmapSet[K]) IDs() *IDTable[K] { return s.ids }

// --- Lazy set: unknown size until materialized; used by navigable range
// scans whose estimated size is allKeys/2 until the first full walk. ---

// LazySet wraps a generator function and caches the materialized result
// after the first full iteration (ToArray, Size, or IsEmpty).
type LazySet[K comparable] struct {
	gen           func() []K
	estimatedSize int
	retrievalCost int
	materialized  []K
	done          bool
}

// NewLazySet builds a lazy result set. estimatedSize is the planner's
// pre-materialization guess (e.g. allKeys/2 for a navigable range scan).
func NewLazySet[K comparable](gen func() []K, estimatedSize, retrievalCost int) *LazySet[K] {
	return &LazySet[K]{gen: gen, estimatedSize: estimatedSize, retrievalCost: retrievalCost}
}

func (s *LazySet[K]) materialize() []K {
	if !s.done {
		s.materialized = s.gen()
		s.done = true
	}
	return s.materialized
}

func (s *LazySet[K]) Size() int {
	return len(s.materialize())
}
func (s *LazySet[K]) IsEmpty() bool { return len(s.materialize()) == 0 }
func (s *LazySet[K]) Contains(k K) bool {
	for _, x := range s.materialize() {
		if x == k {
			return true
		}
	}
	return false
}
func (s *LazySet[K]) ToArray() []K {
	items := s.materialize()
	out := make([]K, len(items))
	copy(out, items)
	return out
}
func (s *LazySet[K]) Iterator() Iterator[K] { return &sliceIterator[K]{items: s.materialize()} }
func (s *LazySet[K]) RetrievalCost() int    { return s.retrievalCost }

// MergeCost returns the cheap pre-materialization estimate before the
// first walk, and the accurate count afterward.
func (s *LazySet[K]) MergeCost() int {
	if s.done {
		return len(s.materialized)
	}
	return s.estimatedSize
}

// --- Sorted set: ordered by a sort field via a caller comparator. ---

// SortedSet holds keys in the order produced by a less function applied
// by the caller before construction; it does not re-sort.
type SortedSet[K comparable] struct {
	items         []K
	retrievalCost int
}

// NewSortedSet wraps an already-ordered slice of keys.
func NewSortedSet[K comparable](items []K, retrievalCost int) *SortedSet[K] {
	return &SortedSet[K]{items: items, retrievalCost: retrievalCost}
}

func (s *SortedSet[K]) Size() int     { return len(s.items) }
func (s *SortedSet[K]) IsEmpty() bool { return len(s.items) == 0 }
func (s *SortedSet[K]) Contains(k K) bool {
	for _, x := range s.items {
		if x == k {
			return true
		}
	}
	return false
}
func (s *SortedSet[K]) ToArray() []K {
	out := make([]K, len(s.items))
	copy(out, s.items)
	return out
}
func (s *SortedSet[K]) Iterator() Iterator[K] { return &sliceIterator[K]{items: s.items} }
func (s *SortedSet[K]) RetrievalCost() int    { return s.retrievalCost }
func (s *SortedSet[K]) MergeCost() int        { return len(s.items) }

// --- Set algebra over the abstract ResultSet contract. ---

// Intersect returns a materialized set of keys present in every input.
// When all inputs are BitmapSets sharing one IDTable, it uses roaring's
// native And for speed; otherwise it falls back to map intersection.
func Intersect[K comparable](sets ...ResultSet[K]) ResultSet[K] {
	if len(sets) == 0 {
		return NewMapSet[K](nil)
	}
	if bitmaps, ids, ok := sameIDTable(sets); ok {
		acc := bitmaps[0].Clone()
		for _, b := range bitmaps[1:] {
			acc.And(b)
		}
		return NewBitmapSet(ids, acc, sumCost(sets))
	}
	// Smallest-first map intersection.
	sort.Slice(sets, func(i, j int) bool { return sets[i].Size() < sets[j].Size() })
	result := make(map[K]struct{})
	for _, k := range sets[0].ToArray() {
		ok := true
		for _, s := range sets[1:] {
			if !s.Contains(k) {
				ok = false
				break
			}
		}
		if ok {
			result[k] = struct{}{}
		}
	}
	return NewMapSetFromSet(result)
}

// Union returns a materialized set of keys present in any input.
func Union[K comparable](sets ...ResultSet[K]) ResultSet[K] {
	if len(sets) == 0 {
		return NewMapSet[K](nil)
	}
	if bitmaps, ids, ok := sameIDTable(sets); ok {
		acc := roaring.New()
		acc.Or(bitmaps[0])
		for _, b := range bitmaps[1:] {
			acc.Or(b)
		}
		return NewBitmapSet(ids, acc, sumCost(sets))
	}
	result := make(map[K]struct{})
	for _, s := range sets {
		for _, k := range s.ToArray() {
			result[k] = struct{}{}
		}
	}
	return NewMapSetFromSet(result)
}

// Subtract returns keys in base that are not in exclude.
func Subtract[K comparable](base, exclude ResultSet[K]) ResultSet[K] {
	if b1, ok1 := base.(*BitmapSet[K]); ok1 {
		if b2, ok2 := exclude.(*BitmapSet[K]); ok2 && b1.ids == b2.ids {
			acc := b1.bitmap.Clone()
			acc.AndNot(b2.bitmap)
			return NewBitmapSet(b1.ids, acc, base.RetrievalCost()+exclude.RetrievalCost())
		}
	}
	result := make(map[K]struct{})
	for _, k := range base.ToArray() {
		if !exclude.Contains(k) {
			result[k] = struct{}{}
		}
	}
	return NewMapSetFromSet(result)
}

func sameIDTable[K comparable](sets []ResultSet[K]) ([]*roaring.Bitmap, *IDTable[K], bool) {
	bitmaps := make([]*roaring.Bitmap, 0, len(sets))
	var ids *IDTable[K]
	for _, s := range sets {
		bs, ok := s.(*BitmapSet[K])
		if !ok {
			return nil, nil, false
		}
		if ids == nil {
			ids = bs.ids
		} else if ids != bs.ids {
			return nil, nil, false
		}
		bitmaps = append(bitmaps, bs.bitmap)
	}
	return bitmaps, ids, true
}

func sumCost[K comparable](sets []ResultSet[K]) int {
	sum := 0
	for _, s := range sets {
		sum += s.RetrievalCost()
	}
	return sum
}
