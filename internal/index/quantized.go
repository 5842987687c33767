package index

import (
	"math"

	"github.com/swarmguard/meshstore/internal/attribute"
	"github.com/swarmguard/meshstore/internal/resultset"
	"github.com/swarmguard/meshstore/internal/value"
)

// Quantizer maps a continuous attribute value into a discrete bucket
// value.
type Quantizer func(v value.Value) value.Value

// IntegerMultiple buckets numeric values to the nearest lower multiple
// of step.
func IntegerMultiple(step int64) Quantizer {
	return func(v value.Value) value.Value {
		f, ok := v.AsFloat64()
		if !ok || step <= 0 {
			return v
		}
		bucket := int64(math.Floor(f/float64(step))) * step
		return value.Int(bucket)
	}
}

// TimestampInterval buckets millisecond timestamps into fixed-width
// intervals.
func TimestampInterval(intervalMs int64) Quantizer {
	return IntegerMultiple(intervalMs)
}

// PowerOf10 buckets a positive value to the power of 10 at or below it.
func PowerOf10() Quantizer {
	return func(v value.Value) value.Value {
		f, ok := v.AsFloat64()
		if !ok || f <= 0 {
			return v
		}
		exp := math.Floor(math.Log10(f))
		return value.Float(math.Pow(10, exp))
	}
}

// Logarithmic buckets a positive value by floor(log_base(v)).
func Logarithmic(base float64) Quantizer {
	return func(v value.Value) value.Value {
		f, ok := v.AsFloat64()
		if !ok || f <= 0 || base <= 1 {
			return v
		}
		return value.Float(math.Floor(math.Log(f) / math.Log(base)))
	}
}

// QuantizedNavigableIndex wraps a NavigableIndex whose stored key is the
// quantized attribute value, collapsing high-cardinality continuous
// fields into coarse buckets.
type QuantizedNavigableIndex[K comparable, R any] struct {
	inner     *NavigableIndex[K, R]
	quantizer Quantizer
}

// NewQuantizedNavigableIndex wraps attr with quantizer before delegating
// to an internal NavigableIndex.
func NewQuantizedNavigableIndex[K comparable, R any](attr attribute.Extractor[R], ids *resultset.IDTable[K], quantizer Quantizer, cmp Comparator) *QuantizedNavigableIndex[K, R] {
	quantizedAttr := attribute.Multi(attr.Name(), func(r R) []value.Value {
		vals := attr.Extract(r)
		out := make([]value.Value, len(vals))
		for i, v := range vals {
			out[i] = quantizer(v)
		}
		return out
	})
	return &QuantizedNavigableIndex[K, R]{
		inner:     NewNavigableIndex[K, R](quantizedAttr, ids, cmp),
		quantizer: quantizer,
	}
}

func (q *QuantizedNavigableIndex[K, R]) Type() string       { return "quantized" }
func (q *QuantizedNavigableIndex[K, R]) Attribute() string  { return q.inner.Attribute() }
func (q *QuantizedNavigableIndex[K, R]) RetrievalCost() int { return q.inner.RetrievalCost() }
func (q *QuantizedNavigableIndex[K, R]) SupportsQuery(op Op) bool { return q.inner.SupportsQuery(op) }
func (q *QuantizedNavigableIndex[K, R]) Add(key K, record R)      { q.inner.Add(key, record) }
func (q *QuantizedNavigableIndex[K, R]) Remove(key K, record R)   { q.inner.Remove(key, record) }
func (q *QuantizedNavigableIndex[K, R]) Update(key K, oldRecord, newRecord *R) {
	q.inner.Update(key, oldRecord, newRecord)
}
func (q *QuantizedNavigableIndex[K, R]) Clear() { q.inner.Clear() }
func (q *QuantizedNavigableIndex[K, R]) Stats() Stats { return q.inner.Stats() }

// Retrieve quantizes range bounds and equality values before delegating;
// equality returns all members of the target bucket.
func (q *QuantizedNavigableIndex[K, R]) Retrieve(query Query) (resultset.ResultSet[K], error) {
	switch query.Op {
	case OpEqual:
		query.Value = q.quantizer(query.Value)
	case OpIn:
		vals := make([]value.Value, len(query.Values))
		for i, v := range query.Values {
			vals[i] = q.quantizer(v)
		}
		query.Values = vals
	case OpGT, OpGTE, OpLT, OpLTE:
		query.Value = q.quantizer(query.Value)
	case OpBetween:
		query.From = q.quantizer(query.From)
		query.To = q.quantizer(query.To)
	}
	return q.inner.Retrieve(query)
}
