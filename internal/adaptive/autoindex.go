package adaptive

import (
	"sync"

	"github.com/swarmguard/meshstore/internal/attribute"
	"github.com/swarmguard/meshstore/internal/index"
)

const defaultAutoIndexThreshold = 100
const defaultMaxIndexes = 32

// RegisteredAttribute pre-declares an attribute AutoIndexManager may
// build an index over: a name and its extractor. The index kind is picked
// from the queried operator, not stored here.
type RegisteredAttribute[K comparable, R any] struct {
	Name      string
	Extractor attribute.Extractor[R]
}

// AutoIndexManagerOption configures an AutoIndexManager at construction.
type AutoIndexManagerOption func(*autoIndexConfig)

type autoIndexConfig struct {
	threshold  int64
	maxIndexes int
}

// WithThreshold overrides the default 100-query auto-create threshold.
func WithThreshold(n int64) AutoIndexManagerOption {
	return func(c *autoIndexConfig) { c.threshold = n }
}

// WithMaxIndexes overrides the default cap of 32 auto-created indexes.
func WithMaxIndexes(n int) AutoIndexManagerOption {
	return func(c *autoIndexConfig) { c.maxIndexes = n }
}

// AutoIndexManager watches recorded query patterns and instantiates the
// advisor-recommended index once a counted (attr, op) pattern crosses
// threshold, as long as the registry has fewer than maxIndexes indexes.
type AutoIndexManager[K comparable, R any] struct {
	mu        sync.Mutex
	cfg       autoIndexConfig
	tracker   *QueryPatternTracker
	advisor   *IndexAdvisor
	registry  *index.Registry[K, R]
	attrs     map[string]attribute.Extractor[R]
	counters  map[patternKey]int64
	onCreated func(attr, indexType string)
}

// NewAutoIndexManager builds a manager over registry, pre-declaring the
// attributes it is allowed to auto-index.
func NewAutoIndexManager[K comparable, R any](
	tracker *QueryPatternTracker,
	registry *index.Registry[K, R],
	attrs []RegisteredAttribute[K, R],
	onCreated func(attr, indexType string),
	opts ...AutoIndexManagerOption,
) *AutoIndexManager[K, R] {
	cfg := autoIndexConfig{threshold: defaultAutoIndexThreshold, maxIndexes: defaultMaxIndexes}
	for _, o := range opts {
		o(&cfg)
	}
	m := &AutoIndexManager[K, R]{
		cfg:       cfg,
		tracker:   tracker,
		advisor:   NewIndexAdvisor(tracker),
		registry:  registry,
		attrs:     make(map[string]attribute.Extractor[R], len(attrs)),
		counters:  make(map[patternKey]int64),
		onCreated: onCreated,
	}
	for _, a := range attrs {
		m.attrs[a.Name] = a.Extractor
	}
	return m
}

// OnQuery must be called once per executed query on attr/op (after
// RecordQuery on the tracker); it increments the (attr,op) counter and
// auto-creates an index the moment the counter reaches threshold.
func (m *AutoIndexManager[K, R]) OnQuery(attr string, op index.Op) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := patternKey{attr: attr, op: op}
	m.counters[key]++
	if m.counters[key] != m.cfg.threshold {
		return
	}
	if len(m.registry.All()) >= m.cfg.maxIndexes {
		return
	}
	ex, ok := m.attrs[attr]
	if !ok {
		return
	}
	kind, ok := indexTypeFor(op)
	if !ok {
		return
	}
	if m.alreadyIndexedLocked(attr, kind) {
		return
	}

	m.createIndexLocked(attr, op, kind, ex)
}

// Suggestions exposes the manager's own advisor, reading the same
// tracker the manager counts queries against.
func (m *AutoIndexManager[K, R]) Suggestions(opts Options) []Suggestion {
	return m.advisor.GetSuggestions(opts)
}

func (m *AutoIndexManager[K, R]) alreadyIndexedLocked(attr, kind string) bool {
	for _, idx := range m.registry.Indexes(attr) {
		if idx.Type() == kind {
			return true
		}
	}
	return false
}

func (m *AutoIndexManager[K, R]) createIndexLocked(attr string, op index.Op, kind string, ex attribute.Extractor[R]) {
	ids := m.registry.IDs()
	var idx index.Index[K, R]
	switch kind {
	case "hash":
		idx = index.NewHashIndex[K, R](ex, ids)
	case "navigable":
		idx = index.NewNavigableIndex[K, R](ex, ids, nil)
	case "inverted":
		idx = index.NewInvertedIndex[K, R](ex, ids, nil)
	default:
		return
	}
	m.registry.Register(idx)
	m.tracker.UpdateIndexStatus(attr, op, true)
	if m.onCreated != nil {
		m.onCreated(attr, kind)
	}
}
