package query

import (
	"regexp"
	"strings"
	"time"

	"github.com/swarmguard/meshstore/internal/attribute"
	"github.com/swarmguard/meshstore/internal/index"
	"github.com/swarmguard/meshstore/internal/tokenize"
	"github.com/swarmguard/meshstore/internal/value"
)

// Extractors names every attribute a record's fields can be evaluated
// against, by attribute name.
type Extractors[R any] map[string]attribute.Extractor[R]

// Evaluate applies pred to record using extractors, re-checking a
// predicate the planner could not fully push into an index (Filter plan
// nodes) and classifying live-query matches.
func Evaluate[R any](pred Predicate, record R, extractors Extractors[R]) bool {
	switch p := pred.(type) {
	case Leaf:
		return evalLeaf(p, record, extractors)
	case And:
		for _, c := range p.Children {
			if !Evaluate(c, record, extractors) {
				return false
			}
		}
		return true
	case Or:
		for _, c := range p.Children {
			if Evaluate(c, record, extractors) {
				return true
			}
		}
		return false
	case Not:
		return !Evaluate(p.Child, record, extractors)
	default:
		return false
	}
}

func evalLeaf[R any](p Leaf, record R, extractors Extractors[R]) bool {
	ex, ok := extractors[p.Attribute]
	if !ok {
		return false
	}
	vals := ex.Extract(record)

	switch p.Op {
	case OpEq:
		return anyEqual(vals, p.Value)
	case OpNeq:
		return !anyEqual(vals, p.Value)
	case OpIn:
		for _, v := range p.Values {
			if anyEqual(vals, v) {
				return true
			}
		}
		return false
	case OpGT, OpGTE, OpLT, OpLTE:
		return anyCompare(vals, p.Value, p.Op)
	case OpBetween:
		return anyBetween(vals, p.From, p.To, p.FromInclusive, p.ToInclusive)
	case OpLike:
		re, err := compileLike(p.Pattern)
		if err != nil {
			return false
		}
		return anyMatchRegex(vals, re)
	case OpRegex:
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return false
		}
		return anyMatchRegex(vals, re)
	case OpContains:
		return tokensContainAll(vals, tokenize.Search().Run(p.Pattern))
	case OpContainsAll:
		return tokensContainAll(vals, stringifyAll(p.Values))
	case OpContainsAny:
		return tokensContainAny(vals, stringifyAll(p.Values))
	case OpMatch:
		return tokensContainAny(vals, tokenize.Search().Run(p.Pattern))
	case OpMatchPrefix:
		return tokensHavePrefix(vals, p.Pattern)
	case OpMatchPhrase:
		return textContainsPhrase(vals, p.Pattern)
	default:
		return false
	}
}

func anyEqual(vals []value.Value, target value.Value) bool {
	for _, v := range vals {
		if value.Equal(v, target) {
			return true
		}
	}
	return false
}

func anyCompare(vals []value.Value, target value.Value, op Op) bool {
	for _, v := range vals {
		c := index.DefaultComparator(v, target)
		switch op {
		case OpGT:
			if c > 0 {
				return true
			}
		case OpGTE:
			if c >= 0 {
				return true
			}
		case OpLT:
			if c < 0 {
				return true
			}
		case OpLTE:
			if c <= 0 {
				return true
			}
		}
	}
	return false
}

func anyBetween(vals []value.Value, from, to value.Value, fromIncl, toIncl bool) bool {
	for _, v := range vals {
		cFrom := index.DefaultComparator(v, from)
		if cFrom < 0 || (cFrom == 0 && !fromIncl) {
			continue
		}
		cTo := index.DefaultComparator(v, to)
		if cTo > 0 || (cTo == 0 && !toIncl) {
			continue
		}
		return true
	}
	return false
}

// compileLike translates SQL-style wildcards (% -> .*, _ -> .) into a
// case-insensitive anchored regex.
func compileLike(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

func anyMatchRegex(vals []value.Value, re *regexp.Regexp) bool {
	for _, v := range vals {
		if re.MatchString(value.Stringify(v)) {
			return true
		}
	}
	return false
}

func stringifyAll(vals []value.Value) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = value.Stringify(v)
	}
	return out
}

func recordTokens(vals []value.Value) []string {
	var all []string
	for _, v := range vals {
		all = append(all, tokenize.Search().Run(value.Stringify(v))...)
	}
	return all
}

func tokensContainAll(vals []value.Value, needles []string) bool {
	if len(needles) == 0 {
		return false
	}
	have := tokenSet(recordTokens(vals))
	for _, n := range needles {
		if _, ok := have[strings.ToLower(n)]; !ok {
			return false
		}
	}
	return true
}

func tokensContainAny(vals []value.Value, needles []string) bool {
	have := tokenSet(recordTokens(vals))
	for _, n := range needles {
		if _, ok := have[strings.ToLower(n)]; ok {
			return true
		}
	}
	return false
}

func tokensHavePrefix(vals []value.Value, prefix string) bool {
	prefix = strings.ToLower(prefix)
	for _, t := range recordTokens(vals) {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

func textContainsPhrase(vals []value.Value, phrase string) bool {
	var sb []string
	for _, v := range vals {
		sb = append(sb, value.Stringify(v))
	}
	text := strings.ToLower(strings.Join(sb, " "))
	return strings.Contains(text, strings.ToLower(phrase))
}

func tokenSet(toks []string) map[string]struct{} {
	m := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		m[strings.ToLower(t)] = struct{}{}
	}
	return m
}

// compareSortValue orders values for sorting: null lowest, numbers
// numeric, dates by timestamp, strings with ISO-date coercion then
// byte-wise compare, booleans false < true.
func compareSortValue(a, b value.Value) int {
	if a.IsNull() && b.IsNull() {
		return 0
	}
	if a.IsNull() {
		return -1
	}
	if b.IsNull() {
		return 1
	}
	if ab, aok := a.Bool(); aok {
		if bb, bok := b.Bool(); bok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			default:
				return 1
			}
		}
	}
	if at, aok := parseISODate(a); aok {
		if bt, bok := parseISODate(b); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}
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

func parseISODate(v value.Value) (time.Time, bool) {
	s, ok := v.Text()
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
