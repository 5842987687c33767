// Package index implements the four index kinds and the IndexRegistry:
// hash, navigable, inverted, and quantized-navigable, plus the compound
// index the adaptive layer can offer.
package index

import (
	"errors"

	"github.com/swarmguard/meshstore/internal/attribute"
	"github.com/swarmguard/meshstore/internal/resultset"
	"github.com/swarmguard/meshstore/internal/value"
)

// ErrUnsupportedQueryType is returned when an index receives an op it
// does not support.
var ErrUnsupportedQueryType = errors.New("index: unsupported query type")

// Op is the predicate operator vocabulary an index may be asked to serve.
type Op string

const (
	OpEqual       Op = "equal"
	OpIn          Op = "in"
	OpHas         Op = "has"
	OpGT          Op = "gt"
	OpGTE         Op = "gte"
	OpLT          Op = "lt"
	OpLTE         Op = "lte"
	OpBetween     Op = "between"
	OpContains    Op = "contains"
	OpContainsAll Op = "containsAll"
	OpContainsAny Op = "containsAny"
)

// Query describes a single predicate retrieval sent to an index.
type Query struct {
	Op    Op
	Value value.Value
	// Values holds the operand list for In/ContainsAll/ContainsAny.
	Values []value.Value
	// Between bounds (used only when Op == OpBetween).
	From, To                 value.Value
	FromInclusive, ToInclusive bool
}

// Stats summarizes an index's distribution.
type Stats struct {
	DistinctValues    int
	TotalEntries      int
	AvgEntriesPerValue float64
}

// Index is the contract every index kind implements, parameterized by
// the map's key type K and the record type R it indexes.
type Index[K comparable, R any] interface {
	Type() string
	Attribute() string
	SupportsQuery(op Op) bool
	RetrievalCost() int
	Add(key K, record R)
	Update(key K, oldRecord, newRecord *R)
	Remove(key K, record R)
	Clear()
	Retrieve(q Query) (resultset.ResultSet[K], error)
	Stats() Stats
}

// extractValues runs an extractor and returns however many values it
// contributes for a record (zero, one, or many).
func extractValues[R any](ex attribute.Extractor[R], record R) []value.Value {
	return ex.Extract(record)
}
