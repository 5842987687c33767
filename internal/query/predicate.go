// Package query implements the predicate AST, cost-based planner, and
// executor: Predicate -> Plan -> ResultSet, with hints and an opaque
// cursor for pagination.
package query

import "github.com/swarmguard/meshstore/internal/value"

// Op is the full predicate operator vocabulary the query surface
// accepts.
type Op string

const (
	OpEq           Op = "eq"
	OpNeq          Op = "neq"
	OpGT           Op = "gt"
	OpGTE          Op = "gte"
	OpLT           Op = "lt"
	OpLTE          Op = "lte"
	OpBetween      Op = "between"
	OpIn           Op = "in"
	OpLike         Op = "like"
	OpRegex        Op = "regex"
	OpContains     Op = "contains"
	OpContainsAll  Op = "containsAll"
	OpContainsAny  Op = "containsAny"
	OpMatch        Op = "match"
	OpMatchPhrase  Op = "matchPhrase"
	OpMatchPrefix  Op = "matchPrefix"
)

// Predicate is the query AST: Leaf | And | Or | Not.
type Predicate interface {
	isPredicate()
}

// Leaf is a single-attribute predicate.
type Leaf struct {
	Op            Op
	Attribute     string
	Value         value.Value
	Values        []value.Value
	From, To      value.Value
	FromInclusive bool
	ToInclusive   bool
	// Pattern holds the raw like/regex/contains/match/matchPrefix/
	// matchPhrase operand text; Value is not read for those ops.
	Pattern string
}

func (Leaf) isPredicate() {}

// And requires every child to match.
type And struct{ Children []Predicate }

func (And) isPredicate() {}

// Or requires at least one child to match.
type Or struct{ Children []Predicate }

func (Or) isPredicate() {}

// Not negates a single child.
type Not struct{ Child Predicate }

func (Not) isPredicate() {}

// SortSpec orders results by a single attribute.
type SortSpec struct {
	Attribute  string
	Descending bool
}

// LimitSpec bounds and offsets a sorted result.
type LimitSpec struct {
	N      int
	Offset int
}

// Query bundles a predicate with optional sort/limit/cursor, the unit the
// planner accepts.
type Query struct {
	Predicate Predicate
	Sort      *SortSpec
	Limit     *LimitSpec
	Cursor    string
}
