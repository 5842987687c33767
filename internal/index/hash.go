package index

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/swarmguard/meshstore/internal/attribute"
	"github.com/swarmguard/meshstore/internal/resultset"
	"github.com/swarmguard/meshstore/internal/value"
)

// hashRetrievalCost is the constant retrieval cost a hash index reports
// to the planner.
const hashRetrievalCost = 30

// HashIndex supports equal/in/has over an attrValue -> Set<Key> posting
// map backed by roaring bitmaps.
type HashIndex[K comparable, R any] struct {
	mu        sync.RWMutex
	attr      attribute.Extractor[R]
	ids       *resultset.IDTable[K]
	postings  map[string]*roaring.Bitmap // stringified value -> ids
	allKeys   *roaring.Bitmap
	// keyValues tracks which stringified values are currently indexed for
	// a key, so Update/Remove can reverse exactly what Add contributed.
	keyValues map[K][]string
}

// NewHashIndex constructs a HashIndex sharing ids with the owning
// registry's id table.
func NewHashIndex[K comparable, R any](attr attribute.Extractor[R], ids *resultset.IDTable[K]) *HashIndex[K, R] {
	return &HashIndex[K, R]{
		attr:      attr,
		ids:       ids,
		postings:  make(map[string]*roaring.Bitmap),
		allKeys:   roaring.New(),
		keyValues: make(map[K][]string),
	}
}

func (h *HashIndex[K, R]) Type() string      { return "hash" }
func (h *HashIndex[K, R]) Attribute() string { return h.attr.Name() }
func (h *HashIndex[K, R]) RetrievalCost() int { return hashRetrievalCost }

func (h *HashIndex[K, R]) SupportsQuery(op Op) bool {
	switch op {
	case OpEqual, OpIn, OpHas:
		return true
	}
	return false
}

func (h *HashIndex[K, R]) Add(key K, record R) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.addLocked(key, record)
}

func (h *HashIndex[K, R]) addLocked(key K, record R) {
	vals := extractValues(h.attr, record)
	if len(vals) == 0 {
		return
	}
	id := h.ids.IDFor(key)
	h.allKeys.Add(id)
	existing := make(map[string]struct{}, len(h.keyValues[key]))
	for _, s := range h.keyValues[key] {
		existing[s] = struct{}{}
	}
	for _, v := range vals {
		s := value.Stringify(v)
		if _, already := existing[s]; already {
			continue // idempotent w.r.t. same (key, attrValue)
		}
		bm := h.postings[s]
		if bm == nil {
			bm = roaring.New()
			h.postings[s] = bm
		}
		bm.Add(id)
		h.keyValues[key] = append(h.keyValues[key], s)
	}
}

func (h *HashIndex[K, R]) removeLocked(key K, record R) {
	vals := extractValues(h.attr, record)
	if len(vals) == 0 {
		return
	}
	id, ok := h.ids.LookupID(key)
	if !ok {
		return
	}
	for _, v := range vals {
		s := value.Stringify(v)
		if bm, ok := h.postings[s]; ok {
			bm.Remove(id)
			if bm.IsEmpty() {
				delete(h.postings, s)
			}
		}
	}
	delete(h.keyValues, key)
	h.allKeys.Remove(id)
}

func (h *HashIndex[K, R]) Remove(key K, record R) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(key, record)
}

func (h *HashIndex[K, R]) Update(key K, oldRecord, newRecord *R) {
	oldVals := stringifyAll(extractValues(h.attr, *oldRecord))
	newVals := stringifyAll(extractValues(h.attr, *newRecord))
	if sameStringSet(oldVals, newVals) {
		return // skip if attr value unchanged
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(key, *oldRecord)
	h.addLocked(key, *newRecord)
}

func (h *HashIndex[K, R]) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.postings = make(map[string]*roaring.Bitmap)
	h.allKeys = roaring.New()
	h.keyValues = make(map[K][]string)
}

func (h *HashIndex[K, R]) Retrieve(q Query) (resultset.ResultSet[K], error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	switch q.Op {
	case OpEqual:
		bm := h.postings[value.Stringify(q.Value)]
		return resultset.NewBitmapSet(h.ids, cloneOrEmpty(bm), hashRetrievalCost), nil
	case OpIn:
		acc := roaring.New()
		for _, v := range q.Values {
			if bm, ok := h.postings[value.Stringify(v)]; ok {
				acc.Or(bm)
			}
		}
		return resultset.NewBitmapSet(h.ids, acc, hashRetrievalCost), nil
	case OpHas:
		return resultset.NewBitmapSet(h.ids, h.allKeys.Clone(), hashRetrievalCost), nil
	default:
		return nil, ErrUnsupportedQueryType
	}
}

func (h *HashIndex[K, R]) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, bm := range h.postings {
		total += int(bm.GetCardinality())
	}
	avg := 0.0
	if len(h.postings) > 0 {
		avg = float64(total) / float64(len(h.postings))
	}
	return Stats{DistinctValues: len(h.postings), TotalEntries: total, AvgEntriesPerValue: avg}
}

func stringifyAll(vals []value.Value) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = value.Stringify(v)
	}
	return out
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	am := make(map[string]int, len(a))
	for _, s := range a {
		am[s]++
	}
	for _, s := range b {
		am[s]--
	}
	for _, c := range am {
		if c != 0 {
			return false
		}
	}
	return true
}

func cloneOrEmpty(bm *roaring.Bitmap) *roaring.Bitmap {
	if bm == nil {
		return roaring.New()
	}
	return bm.Clone()
}
