// Package attribute implements the attribute extractors indexes are
// built from: a record contributes zero, one, or many (attrValue -> key)
// entries.
package attribute

import "github.com/swarmguard/meshstore/internal/value"

// Extractor names an attribute and extracts zero or more values for a
// given record.
type Extractor[R any] interface {
	Name() string
	Extract(record R) []value.Value
}

type simpleExtractor[R any] struct {
	name string
	fn   func(R) (value.Value, bool)
}

// Simple builds a single-valued attribute extractor: fn returns
// (value, false) to contribute nothing for a record.
func Simple[R any](name string, fn func(R) (value.Value, bool)) Extractor[R] {
	return simpleExtractor[R]{name: name, fn: fn}
}

func (e simpleExtractor[R]) Name() string { return e.name }

func (e simpleExtractor[R]) Extract(record R) []value.Value {
	v, ok := e.fn(record)
	if !ok {
		return nil
	}
	return []value.Value{v}
}

type multiExtractor[R any] struct {
	name string
	fn   func(R) []value.Value
}

// Multi builds a multi-valued attribute extractor, e.g. tags or an
// inverted-index text field split into tokens.
func Multi[R any](name string, fn func(R) []value.Value) Extractor[R] {
	return multiExtractor[R]{name: name, fn: fn}
}

func (e multiExtractor[R]) Name() string { return e.name }

func (e multiExtractor[R]) Extract(record R) []value.Value {
	return e.fn(record)
}
