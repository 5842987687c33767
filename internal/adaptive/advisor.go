package adaptive

import (
	"sort"

	"github.com/swarmguard/meshstore/internal/index"
)

// Priority ranks a suggestion's urgency.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Suggestion is one ranked index recommendation.
type Suggestion struct {
	Attribute        string
	IndexType        string
	Priority         Priority
	Reason           string
	EstimatedBenefit float64
	EstimatedCost    float64
	Attributes       []string // populated for compound suggestions
}

// Options configures GetSuggestions. The zero value excludes attributes
// that already carry a matching index; IncludeIndexed must be set
// explicitly to surface those too.
type Options struct {
	IncludeIndexed bool
}

// IndexAdvisor turns QueryPatternTracker statistics into ranked
// suggestions.
type IndexAdvisor struct {
	tracker *QueryPatternTracker
}

// NewIndexAdvisor builds an advisor reading from tracker.
func NewIndexAdvisor(tracker *QueryPatternTracker) *IndexAdvisor {
	return &IndexAdvisor{tracker: tracker}
}

// indexTypeFor maps an operator to the index kind that serves it:
// eq/in/has->hash, range->navigable, text->inverted.
func indexTypeFor(op index.Op) (string, bool) {
	switch op {
	case index.OpEqual, index.OpIn, index.OpHas:
		return "hash", true
	case index.OpGT, index.OpGTE, index.OpLT, index.OpLTE, index.OpBetween:
		return "navigable", true
	case index.OpContains, index.OpContainsAll, index.OpContainsAny:
		return "inverted", true
	default:
		return "", false
	}
}

func priorityFor(queryCount int64, avgCost float64) Priority {
	switch {
	case queryCount > 100 && avgCost > 10:
		return PriorityHigh
	case queryCount > 50:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// GetSuggestions returns ranked suggestions: single-attribute
// suggestions (best op per attribute wins) followed by compound
// suggestions for tracked AND-patterns over two or more attributes,
// sorted by priority then estimated benefit descending.
func (a *IndexAdvisor) GetSuggestions(opts Options) []Suggestion {
	bestByAttr := make(map[string]Stat)
	for _, s := range a.tracker.Stats() {
		if s.HasIndex && !opts.IncludeIndexed {
			continue
		}
		if _, ok := indexTypeFor(s.Op); !ok {
			continue
		}
		cur, exists := bestByAttr[s.Attribute]
		if !exists || s.QueryCount > cur.QueryCount {
			bestByAttr[s.Attribute] = s
		}
	}

	out := make([]Suggestion, 0, len(bestByAttr))
	for attr, s := range bestByAttr {
		kind, _ := indexTypeFor(s.Op)
		out = append(out, Suggestion{
			Attribute:        attr,
			IndexType:        kind,
			Priority:         priorityFor(s.QueryCount, s.AverageCost),
			Reason:           reasonFor(s),
			EstimatedBenefit: estimatedBenefit(s),
			EstimatedCost:    estimatedIndexCost(s),
		})
	}

	for _, s := range a.tracker.CompoundStats() {
		if s.HasIndex && !opts.IncludeIndexed {
			continue
		}
		priority := priorityFor(s.QueryCount, s.AverageCost)
		if priority == PriorityLow {
			continue
		}
		out = append(out, Suggestion{
			Attribute:        s.Attribute,
			IndexType:        "compound",
			Priority:         priority,
			Reason:           reasonFor(s),
			EstimatedBenefit: estimatedBenefit(s),
			EstimatedCost:    estimatedIndexCost(s),
			Attributes:       a.tracker.CompoundAttributes(s.Attribute),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := priorityRank(out[i].Priority), priorityRank(out[j].Priority)
		if pi != pj {
			return pi < pj
		}
		return out[i].EstimatedBenefit > out[j].EstimatedBenefit
	})
	return out
}

func priorityRank(p Priority) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

func reasonFor(s Stat) string {
	if s.QueryCount > 100 && s.AverageCost > 10 {
		return "high query volume with high average cost and no supporting index"
	}
	if s.QueryCount > 50 {
		return "moderate query volume with no supporting index"
	}
	return "low query volume observed"
}

func estimatedBenefit(s Stat) float64 {
	return float64(s.QueryCount) * s.AverageCost
}

func estimatedIndexCost(s Stat) float64 {
	if s.EstimatedCardinality <= 0 {
		return 1
	}
	return float64(s.EstimatedCardinality)
}
