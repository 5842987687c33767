// Package livequery implements the subscription/delta layer: a Manager
// holds one plan and result set per distinct predicate and turns record
// mutations into Added/Removed/Updated deltas for every active
// subscriber.
package livequery

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/swarmguard/meshstore/internal/query"
	"github.com/swarmguard/meshstore/internal/value"
)

// ChangeKind classifies a Delta against an active live query's result
// set.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeRemoved
	ChangeUpdated
)

func (c ChangeKind) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// Operation names the write that triggered a Delta.
type Operation string

const (
	OpRecordAdded   Operation = "recordAdded"
	OpRecordUpdated Operation = "recordUpdated"
	OpRecordRemoved Operation = "recordRemoved"
)

// Delta is one change notification for an active live query.
type Delta[K comparable, R any] struct {
	Key            K
	Record         R
	Change         ChangeKind
	Operation      Operation
	NewResultCount int
}

// EventKind distinguishes the one-time Initial snapshot from ongoing
// Deltas.
type EventKind int

const (
	EventInitial EventKind = iota
	EventDelta
)

// Event is what a subscriber Callback receives.
type Event[K comparable, R any] struct {
	Kind    EventKind
	Results []K
	Delta   Delta[K, R]
}

// Callback is a live-query subscriber. A returned error is caught and
// logged; it never interrupts notification of the other subscribers.
type Callback[K comparable, R any] func(Event[K, R]) error

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// Unsubscribe removes the subscriber. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

type entry[K comparable, R any] struct {
	mu          sync.Mutex
	predicate   query.Predicate
	resultSet   map[K]struct{}
	subscribers map[uint64]Callback[K, R]
	nextSubID   uint64
}

// Equality decides whether two record values are the same for the
// purpose of suppressing a no-op Updated notification; nil defaults to
// reflect.DeepEqual, mirroring ormap.Map's Equality contract.
type Equality[R any] func(a, b R) bool

// Manager is the live-query registry for one map instance. All methods
// are meant to be called from the writer's thread, and subscriber
// callbacks run synchronously before the triggering mutation's call
// returns.
type Manager[K comparable, R any] struct {
	mu         sync.Mutex
	planner    *query.Planner[K, R]
	extractors query.Extractors[R]
	entries    map[string]*entry[K, R]
	logger     *slog.Logger
	eq         Equality[R]
}

// NewManager builds a Manager. A nil logger defaults to slog.Default(),
// matching the rest of the module's ambient logging convention. A nil eq
// defaults to reflect.DeepEqual.
func NewManager[K comparable, R any](planner *query.Planner[K, R], extractors query.Extractors[R], logger *slog.Logger, eq Equality[R]) *Manager[K, R] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager[K, R]{
		planner:    planner,
		extractors: extractors,
		entries:    make(map[string]*entry[K, R]),
		logger:     logger,
		eq:         eq,
	}
}

func (m *Manager[K, R]) valueEqual(a, b R) bool {
	if m.eq != nil {
		return m.eq(a, b)
	}
	return reflect.DeepEqual(a, b)
}

// Subscribe registers pred, executing its plan once if no active
// subscription already tracks it, then emits an Initial event to cb
// alone before returning the unsubscribe handle.
func (m *Manager[K, R]) Subscribe(pred query.Predicate, cb Callback[K, R]) (*Subscription, error) {
	key := CanonicalKey(pred)

	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		plan, err := m.planner.Plan(pred)
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		resultSet, err := plan.Execute()
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		e = &entry[K, R]{
			predicate:   pred,
			resultSet:   toSet(resultSet.ToArray()),
			subscribers: make(map[uint64]Callback[K, R]),
		}
		m.entries[key] = e
	}
	m.mu.Unlock()

	e.mu.Lock()
	subID := e.nextSubID
	e.nextSubID++
	e.subscribers[subID] = cb
	initial := make([]K, 0, len(e.resultSet))
	for k := range e.resultSet {
		initial = append(initial, k)
	}
	e.mu.Unlock()

	m.invoke(cb, Event[K, R]{Kind: EventInitial, Results: initial})

	sub := &Subscription{cancel: func() { m.unsubscribe(key, subID) }}
	return sub, nil
}

func (m *Manager[K, R]) unsubscribe(key string, subID uint64) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	e.mu.Lock()
	delete(e.subscribers, subID)
	empty := len(e.subscribers) == 0
	e.mu.Unlock()

	if !empty {
		return
	}
	m.mu.Lock()
	if cur, ok := m.entries[key]; ok && cur == e {
		cur.mu.Lock()
		stillEmpty := len(cur.subscribers) == 0
		cur.mu.Unlock()
		if stillEmpty {
			delete(m.entries, key)
		}
	}
	m.mu.Unlock()
}

// OnRecordAdded notifies every active live query of a newly-set key.
func (m *Manager[K, R]) OnRecordAdded(key K, record R) {
	m.notify(key, record, true, OpRecordAdded)
}

// OnRecordUpdated notifies every active live query of a changed record.
// A call where newRecord equals oldRecord under the Manager's Equality
// is a no-op: no Delta is emitted, matching the index layer's own
// skip-if-unchanged rule (HashIndex.Update, NavigableIndex.Update).
func (m *Manager[K, R]) OnRecordUpdated(key K, oldRecord, newRecord R) {
	if m.valueEqual(oldRecord, newRecord) {
		return
	}
	m.notify(key, newRecord, true, OpRecordUpdated)
}

// OnRecordRemoved notifies every active live query of a deleted key.
// record is the last known value, carried on a Removed Delta for
// subscribers that want to react to what left the set.
func (m *Manager[K, R]) OnRecordRemoved(key K, record R) {
	m.notify(key, record, false, OpRecordRemoved)
}

// notify recomputes matchesBefore/matchesAfter against each entry's
// stored result set, then mutates that set and emits a Delta for every
// transition except false→false.
func (m *Manager[K, R]) notify(key K, record R, hasAfter bool, op Operation) {
	m.mu.Lock()
	entries := make([]*entry[K, R], 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		_, before := e.resultSet[key]
		after := false
		if hasAfter {
			after = query.Evaluate(e.predicate, record, m.extractors)
		}
		var kind ChangeKind
		emit := true
		switch {
		case !before && after:
			kind = ChangeAdded
			e.resultSet[key] = struct{}{}
		case before && !after:
			kind = ChangeRemoved
			delete(e.resultSet, key)
		case before && after:
			kind = ChangeUpdated
		default:
			emit = false
		}
		newCount := len(e.resultSet)
		var subs []Callback[K, R]
		if emit {
			subs = make([]Callback[K, R], 0, len(e.subscribers))
			for _, cb := range e.subscribers {
				subs = append(subs, cb)
			}
		}
		e.mu.Unlock()

		if !emit {
			continue
		}
		delta := Delta[K, R]{Key: key, Record: record, Change: kind, Operation: op, NewResultCount: newCount}
		for _, cb := range subs {
			m.invoke(cb, Event[K, R]{Kind: EventDelta, Delta: delta})
		}
	}
}

// invoke runs cb with panic and error isolation: a misbehaving
// subscriber never prevents the remaining subscribers from being
// notified.
func (m *Manager[K, R]) invoke(cb Callback[K, R], ev Event[K, R]) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("livequery subscriber callback panicked", "panic", r)
		}
	}()
	if err := cb(ev); err != nil {
		m.logger.Error("livequery subscriber callback failed", "error", err)
	}
}

func toSet[K comparable](keys []K) map[K]struct{} {
	out := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}

// CanonicalKey builds the structural identity of pred used to dedupe
// subscriptions on an equivalent predicate.
func CanonicalKey(pred query.Predicate) string {
	var sb strings.Builder
	writePredicate(&sb, pred)
	return sb.String()
}

func writePredicate(sb *strings.Builder, pred query.Predicate) {
	switch p := pred.(type) {
	case query.Leaf:
		sb.WriteString("Leaf(")
		sb.WriteString(string(p.Op))
		sb.WriteByte(',')
		sb.WriteString(p.Attribute)
		sb.WriteByte(',')
		sb.WriteString(value.Stringify(p.Value))
		sb.WriteByte(',')
		for i, v := range p.Values {
			if i > 0 {
				sb.WriteByte(';')
			}
			sb.WriteString(value.Stringify(v))
		}
		sb.WriteByte(',')
		sb.WriteString(value.Stringify(p.From))
		sb.WriteByte(',')
		sb.WriteString(value.Stringify(p.To))
		fmt.Fprintf(sb, ",%v,%v,", p.FromInclusive, p.ToInclusive)
		sb.WriteString(p.Pattern)
		sb.WriteByte(')')
	case query.And:
		sb.WriteString("And(")
		for i, c := range p.Children {
			if i > 0 {
				sb.WriteByte(',')
			}
			writePredicate(sb, c)
		}
		sb.WriteByte(')')
	case query.Or:
		sb.WriteString("Or(")
		for i, c := range p.Children {
			if i > 0 {
				sb.WriteByte(',')
			}
			writePredicate(sb, c)
		}
		sb.WriteByte(')')
	case query.Not:
		sb.WriteString("Not(")
		writePredicate(sb, p.Child)
		sb.WriteByte(')')
	default:
		sb.WriteString("?")
	}
}
