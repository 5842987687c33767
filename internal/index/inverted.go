package index

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/swarmguard/meshstore/internal/attribute"
	"github.com/swarmguard/meshstore/internal/resultset"
	"github.com/swarmguard/meshstore/internal/tokenize"
	"github.com/swarmguard/meshstore/internal/value"
)

// invertedRetrievalCost is the constant retrieval cost an inverted
// index reports to the planner.
const invertedRetrievalCost = 50

type docInfo struct {
	tokens         []string
	documentLength int
}

// InvertedIndex supports contains/containsAll/containsAny/has over a
// tokenized text attribute.
type InvertedIndex[K comparable, R any] struct {
	mu       sync.RWMutex
	attr     attribute.Extractor[R]
	ids      *resultset.IDTable[K]
	pipeline tokenize.Pipeline
	postings map[string]*roaring.Bitmap // token -> ids
	docs     map[K]docInfo
	allKeys  *roaring.Bitmap
}

// NewInvertedIndex constructs an InvertedIndex using pipeline to tokenize
// the attribute's text values.
func NewInvertedIndex[K comparable, R any](attr attribute.Extractor[R], ids *resultset.IDTable[K], pipeline tokenize.Pipeline) *InvertedIndex[K, R] {
	return &InvertedIndex[K, R]{
		attr:     attr,
		ids:      ids,
		pipeline: pipeline,
		postings: make(map[string]*roaring.Bitmap),
		docs:     make(map[K]docInfo),
		allKeys:  roaring.New(),
	}
}

func (ix *InvertedIndex[K, R]) Type() string       { return "inverted" }
func (ix *InvertedIndex[K, R]) Attribute() string  { return ix.attr.Name() }
func (ix *InvertedIndex[K, R]) RetrievalCost() int { return invertedRetrievalCost }

func (ix *InvertedIndex[K, R]) SupportsQuery(op Op) bool {
	switch op {
	case OpContains, OpContainsAll, OpContainsAny, OpHas:
		return true
	}
	return false
}

func (ix *InvertedIndex[K, R]) textOf(record R) string {
	var sb []string
	for _, v := range extractValues(ix.attr, record) {
		sb = append(sb, value.Stringify(v))
	}
	out := ""
	for i, s := range sb {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return out
}

func (ix *InvertedIndex[K, R]) Add(key K, record R) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.addLocked(key, record)
}

func (ix *InvertedIndex[K, R]) addLocked(key K, record R) {
	text := ix.textOf(record)
	if text == "" {
		return
	}
	tokens := ix.pipeline.Run(text)
	if len(tokens) == 0 {
		return
	}
	id := ix.ids.IDFor(key)
	ix.allKeys.Add(id)
	for _, tok := range tokens {
		bm := ix.postings[tok]
		if bm == nil {
			bm = roaring.New()
			ix.postings[tok] = bm
		}
		bm.Add(id)
	}
	ix.docs[key] = docInfo{tokens: tokens, documentLength: len(tokens)}
}

func (ix *InvertedIndex[K, R]) removeLocked(key K, _ R) {
	id, ok := ix.ids.LookupID(key)
	if !ok {
		return
	}
	doc, ok := ix.docs[key]
	if !ok {
		return
	}
	for _, tok := range doc.tokens {
		if bm, ok := ix.postings[tok]; ok {
			bm.Remove(id)
			if bm.IsEmpty() {
				delete(ix.postings, tok)
			}
		}
	}
	delete(ix.docs, key)
	ix.allKeys.Remove(id)
}

func (ix *InvertedIndex[K, R]) Remove(key K, record R) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(key, record)
}

func (ix *InvertedIndex[K, R]) Update(key K, oldRecord, newRecord *R) {
	oldText := ix.textOf(*oldRecord)
	newText := ix.textOf(*newRecord)
	if oldText == newText {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(key, *oldRecord)
	ix.addLocked(key, *newRecord)
}

func (ix *InvertedIndex[K, R]) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.postings = make(map[string]*roaring.Bitmap)
	ix.docs = make(map[K]docInfo)
	ix.allKeys = roaring.New()
}

// Retrieve implements contains (AND, rarest-first intersection),
// containsAny (union), containsAll (intersection over explicit values),
// and has.
func (ix *InvertedIndex[K, R]) Retrieve(q Query) (resultset.ResultSet[K], error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	switch q.Op {
	case OpContains:
		toks := ix.pipeline.Run(value.Stringify(q.Value))
		return ix.intersectTokens(toks), nil
	case OpContainsAll:
		toks := stringifyAll(q.Values)
		return ix.intersectTokens(toks), nil
	case OpContainsAny:
		toks := stringifyAll(q.Values)
		acc := roaring.New()
		for _, t := range toks {
			if bm, ok := ix.postings[t]; ok {
				acc.Or(bm)
			}
		}
		return resultset.NewBitmapSet(ix.ids, acc, invertedRetrievalCost), nil
	case OpHas:
		return resultset.NewBitmapSet(ix.ids, ix.allKeys.Clone(), invertedRetrievalCost), nil
	default:
		return nil, ErrUnsupportedQueryType
	}
}

// intersectTokens performs AND intersection of posting lists, starting
// from the rarest token (size-ascending) to minimize work.
func (ix *InvertedIndex[K, R]) intersectTokens(tokens []string) resultset.ResultSet[K] {
	if len(tokens) == 0 {
		return resultset.NewBitmapSet(ix.ids, roaring.New(), invertedRetrievalCost)
	}
	bitmaps := make([]*roaring.Bitmap, 0, len(tokens))
	for _, t := range tokens {
		bm, ok := ix.postings[t]
		if !ok {
			return resultset.NewBitmapSet(ix.ids, roaring.New(), invertedRetrievalCost) // a missing token means no match
		}
		bitmaps = append(bitmaps, bm)
	}
	sort.Slice(bitmaps, func(i, j int) bool { return bitmaps[i].GetCardinality() < bitmaps[j].GetCardinality() })
	acc := bitmaps[0].Clone()
	for _, bm := range bitmaps[1:] {
		acc.And(bm)
	}
	return resultset.NewBitmapSet(ix.ids, acc, invertedRetrievalCost)
}

// GetTokenDocumentCount exposes document frequency for external BM25
// scoring.
func (ix *InvertedIndex[K, R]) GetTokenDocumentCount(token string) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if bm, ok := ix.postings[token]; ok {
		return int(bm.GetCardinality())
	}
	return 0
}

// DocumentLength returns the token count recorded for key, for BM25
// length normalization by an external scorer.
func (ix *InvertedIndex[K, R]) DocumentLength(key K) (int, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	d, ok := ix.docs[key]
	return d.documentLength, ok
}

// TotalDocuments returns the number of documents indexed, for BM25 idf.
func (ix *InvertedIndex[K, R]) TotalDocuments() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

func (ix *InvertedIndex[K, R]) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	total := 0
	for _, bm := range ix.postings {
		total += int(bm.GetCardinality())
	}
	avg := 0.0
	if len(ix.postings) > 0 {
		avg = float64(total) / float64(len(ix.postings))
	}
	return Stats{DistinctValues: len(ix.postings), TotalEntries: total, AvgEntriesPerValue: avg}
}
