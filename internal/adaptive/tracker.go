// Package adaptive implements query-pattern tracking, index suggestion
// scoring, and threshold-triggered automatic index creation.
package adaptive

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/swarmguard/meshstore/internal/index"
)

const (
	defaultMaxTrackedPatterns = 1000
	defaultStatsTTL           = 24 * time.Hour
)

// Stat is the per-(attribute, op) accounting record the tracker
// maintains.
type Stat struct {
	Attribute           string
	Op                  index.Op
	QueryCount          int64
	TotalCost           float64
	AverageCost         float64
	LastQueried         time.Time
	EstimatedCardinality int
	HasIndex            bool
}

type patternKey struct {
	attr string
	op   index.Op
}

// QueryPatternTracker accumulates per-(attribute,op) and per-attribute-set
// (AND) query statistics, LRU-bounded by maxTrackedPatterns and pruned of
// entries older than statsTTL on read.
type QueryPatternTracker struct {
	mu                 sync.Mutex
	maxTrackedPatterns int
	statsTTL           time.Duration
	nowFunc            func() time.Time
	single             map[patternKey]*Stat
	compound           map[string]*Stat // key: sorted attrs joined by "+"
	compoundAttrs      map[string][]string
}

// TrackerOption configures a QueryPatternTracker at construction.
type TrackerOption func(*QueryPatternTracker)

// WithMaxTrackedPatterns overrides the default 1000-pattern LRU bound.
func WithMaxTrackedPatterns(n int) TrackerOption {
	return func(t *QueryPatternTracker) { t.maxTrackedPatterns = n }
}

// WithStatsTTL overrides the default 24h staleness window.
func WithStatsTTL(d time.Duration) TrackerOption {
	return func(t *QueryPatternTracker) { t.statsTTL = d }
}

// withNowFunc overrides the tracker's clock; test-only.
func withNowFunc(f func() time.Time) TrackerOption {
	return func(t *QueryPatternTracker) { t.nowFunc = f }
}

// NewQueryPatternTracker builds an empty tracker.
func NewQueryPatternTracker(opts ...TrackerOption) *QueryPatternTracker {
	t := &QueryPatternTracker{
		maxTrackedPatterns: defaultMaxTrackedPatterns,
		statsTTL:           defaultStatsTTL,
		nowFunc:            time.Now,
		single:             make(map[patternKey]*Stat),
		compound:           make(map[string]*Stat),
		compoundAttrs:      make(map[string][]string),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// RecordQuery records one execution of a single-attribute query. rate is
// the sampling divisor: a value of N means this call represents N
// observed executions (1 when sampling is disabled).
func (t *QueryPatternTracker) RecordQuery(attr string, op index.Op, executionMs float64, resultSize int, hasIndex bool, rate int) {
	if rate <= 0 {
		rate = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneStaleLocked()

	key := patternKey{attr: attr, op: op}
	s, ok := t.single[key]
	if !ok {
		if len(t.single)+len(t.compound) >= t.maxTrackedPatterns {
			t.evictLRULocked()
		}
		s = &Stat{Attribute: attr, Op: op}
		t.single[key] = s
	}
	t.applySampleLocked(s, executionMs, resultSize, hasIndex, rate)
}

// RecordCompoundQuery records one execution of an AND query spanning
// attrs (order-independent identity).
func (t *QueryPatternTracker) RecordCompoundQuery(attrs []string, executionMs float64, resultSize int, hasCompoundIndex bool, rate int) {
	if rate <= 0 {
		rate = 1
	}
	if len(attrs) < 2 {
		return
	}
	sorted := append([]string(nil), attrs...)
	sort.Strings(sorted)
	key := strings.Join(sorted, "+")

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneStaleLocked()

	s, ok := t.compound[key]
	if !ok {
		if len(t.single)+len(t.compound) >= t.maxTrackedPatterns {
			t.evictLRULocked()
		}
		s = &Stat{Attribute: key}
		t.compound[key] = s
		t.compoundAttrs[key] = sorted
	}
	t.applySampleLocked(s, executionMs, resultSize, hasCompoundIndex, rate)
}

func (t *QueryPatternTracker) applySampleLocked(s *Stat, executionMs float64, resultSize int, hasIndex bool, rate int) {
	now := t.nowFunc()
	extrapolated := int64(rate)
	s.QueryCount += extrapolated
	s.TotalCost += executionMs * float64(rate)
	s.AverageCost = s.TotalCost / float64(s.QueryCount)
	s.LastQueried = now
	if resultSize > s.EstimatedCardinality {
		s.EstimatedCardinality = resultSize
	}
	s.HasIndex = hasIndex
}

// UpdateIndexStatus flips HasIndex for attr/op (or a compound pattern, by
// passing the Op zero value and the joined key as attr) once an index
// has actually been created, so future suggestions skip it.
func (t *QueryPatternTracker) UpdateIndexStatus(attr string, op index.Op, hasIndex bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.single[patternKey{attr: attr, op: op}]; ok {
		s.HasIndex = hasIndex
	}
	if s, ok := t.compound[attr]; ok {
		s.HasIndex = hasIndex
	}
}

// Stats returns a snapshot of every currently tracked single-attribute
// pattern, pruned of stale entries.
func (t *QueryPatternTracker) Stats() []Stat {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneStaleLocked()
	out := make([]Stat, 0, len(t.single))
	for _, s := range t.single {
		out = append(out, *s)
	}
	return out
}

// CompoundStats returns a snapshot of every tracked AND-pattern, along
// with the attribute set each key decodes to.
func (t *QueryPatternTracker) CompoundStats() []Stat {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneStaleLocked()
	out := make([]Stat, 0, len(t.compound))
	for _, s := range t.compound {
		out = append(out, *s)
	}
	return out
}

// CompoundAttributes returns the attribute set a compound pattern key
// (Stat.Attribute for a CompoundStats entry) decodes to.
func (t *QueryPatternTracker) CompoundAttributes(key string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.compoundAttrs[key]...)
}

func (t *QueryPatternTracker) pruneStaleLocked() {
	cutoff := t.nowFunc().Add(-t.statsTTL)
	for k, s := range t.single {
		if s.LastQueried.Before(cutoff) {
			delete(t.single, k)
		}
	}
	for k, s := range t.compound {
		if s.LastQueried.Before(cutoff) {
			delete(t.compound, k)
			delete(t.compoundAttrs, k)
		}
	}
}

// evictLRULocked drops the single least-recently-queried pattern across
// both maps to stay within maxTrackedPatterns.
func (t *QueryPatternTracker) evictLRULocked() {
	var (
		oldestTime time.Time
		oldestKey  patternKey
		oldestIsCompound bool
		oldestCompoundKey string
		found      bool
	)
	for k, s := range t.single {
		if !found || s.LastQueried.Before(oldestTime) {
			oldestTime, oldestKey, found = s.LastQueried, k, true
			oldestIsCompound = false
		}
	}
	for k, s := range t.compound {
		if !found || s.LastQueried.Before(oldestTime) {
			oldestTime, oldestCompoundKey, found = s.LastQueried, k, true
			oldestIsCompound = true
		}
	}
	if !found {
		return
	}
	if oldestIsCompound {
		delete(t.compound, oldestCompoundKey)
		delete(t.compoundAttrs, oldestCompoundKey)
	} else {
		delete(t.single, oldestKey)
	}
}
