// Package ormap implements the Observed-Remove multimap CRDT:
// K -> (Tag -> ORMapRecord<V>) plus a global tombstone set.
package ormap

import (
	"reflect"
	"sync"

	"github.com/swarmguard/meshstore/internal/clock"
)

// Record is ORMapRecord<V>: a value, the tag that minted it, its
// timestamp, and an optional TTL.
type Record[V any] struct {
	Value     V
	Tag       string
	Timestamp clock.Timestamp
	TTLMs     uint32
	HasTTL    bool
}

func (r Record[V]) expiredInclusive(nowMillis int64) bool {
	if !r.HasTTL {
		return false
	}
	return r.Timestamp.Millis+int64(r.TTLMs) <= nowMillis
}

// Equality is the ValueEq contract §9 documents as a behavioral change
// from the source's identity equality: value equality for primitives,
// user-supplied for complex values.
type Equality[V any] func(a, b V) bool

// ChangeKind classifies what a lifecycle notification represents.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeRemoved
)

// Listener observes tag-level lifecycle events as the OR-Map's active
// set changes.
type Listener[K comparable, V any] func(key K, kind ChangeKind, record Record[V])

// Map is the OR-Map: K -> (Tag -> Record<V>), plus a global tombstone set.
type Map[K comparable, V any] struct {
	mu         sync.RWMutex
	hlc        *clock.Clock
	active     map[K]map[string]Record[V] // key -> tag -> record
	tagKey     map[string]K               // tag -> owning key, for O(1) applyTombstone
	tombstones map[string]struct{}
	eq         Equality[V]
	listeners  []Listener[K, V]
	nowMillis  func() int64
}

// New constructs an OR-Map sharing hlc with every other structure bound
// to the same clock. A nil eq makes Remove compare values with
// reflect.DeepEqual.
func New[K comparable, V any](hlc *clock.Clock, eq Equality[V]) *Map[K, V] {
	return &Map[K, V]{
		hlc:        hlc,
		active:     make(map[K]map[string]Record[V]),
		tagKey:     make(map[string]K),
		tombstones: make(map[string]struct{}),
		eq:         eq,
		nowMillis:  systemNowMillis,
	}
}

// NewWithNowFunc is New but with an injectable wall-clock source, for
// deterministic TTL-expiry tests.
func NewWithNowFunc[K comparable, V any](hlc *clock.Clock, eq Equality[V], nowMillis func() int64) *Map[K, V] {
	m := New[K, V](hlc, eq)
	m.nowMillis = nowMillis
	return m
}

// AddListener registers a tag-lifecycle observer.
func (m *Map[K, V]) AddListener(l Listener[K, V]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Add mints a fresh globally-unique tag (hlc.Now().String()) and inserts
// it under key. ttlMs of 0 means no TTL.
func (m *Map[K, V]) Add(key K, v V, ttlMs uint32) (Record[V], error) {
	ts, err := m.hlc.Now()
	if err != nil {
		return Record[V]{}, err
	}
	tag := ts.String()
	rec := Record[V]{Value: v, Tag: tag, Timestamp: ts}
	if ttlMs > 0 {
		rec.HasTTL = true
		rec.TTLMs = ttlMs
	}

	m.mu.Lock()
	if m.active[key] == nil {
		m.active[key] = make(map[string]Record[V])
	}
	m.active[key][tag] = rec
	m.tagKey[tag] = key
	m.mu.Unlock()

	m.notify(key, ChangeAdded, rec)
	return rec, nil
}

// Remove tombstones every currently observed tag under key whose value
// equals v (per the configured equality), returning the removed tags. A
// concurrent add with a fresh tag that was not yet observed survives
// (add-wins).
func (m *Map[K, V]) Remove(key K, v V) []string {
	m.mu.Lock()
	tags := m.active[key]
	var removedTags []string
	var removedRecs []Record[V]
	for tag, rec := range tags {
		if m.valueEqual(rec.Value, v) {
			removedTags = append(removedTags, tag)
			removedRecs = append(removedRecs, rec)
		}
	}
	for _, tag := range removedTags {
		delete(tags, tag)
		delete(m.tagKey, tag)
		m.tombstones[tag] = struct{}{}
	}
	if len(tags) == 0 {
		delete(m.active, key)
	}
	m.mu.Unlock()

	for _, rec := range removedRecs {
		m.notify(key, ChangeRemoved, rec)
	}
	return removedTags
}

// valueEqual falls back to reflect.DeepEqual when the caller supplied no
// Equality function — the right default for value-typed primitives,
// distinct from reference/pointer identity.
func (m *Map[K, V]) valueEqual(a, b V) bool {
	if m.eq != nil {
		return m.eq(a, b)
	}
	return reflect.DeepEqual(a, b)
}

// Get returns the live values under key, skipping tombstones and
// TTL-expired records.
func (m *Map[K, V]) Get(key K) []V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.nowMillis()
	var out []V
	for _, rec := range m.active[key] {
		if rec.expiredInclusive(now) {
			continue
		}
		out = append(out, rec.Value)
	}
	return out
}

// GetRecords returns the live raw records under key (includes
// TTL-expired; excludes tombstoned, since tombstoned tags were already
// removed from active).
func (m *Map[K, V]) GetRecords(key K) []Record[V] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record[V], 0, len(m.active[key]))
	for _, rec := range m.active[key] {
		out = append(out, rec)
	}
	return out
}

// Apply inserts record under key unless its tag is already tombstoned;
// returns whether it was applied.
func (m *Map[K, V]) Apply(key K, record Record[V]) bool {
	m.mu.Lock()
	if _, dead := m.tombstones[record.Tag]; dead {
		m.mu.Unlock()
		return false
	}
	if m.active[key] == nil {
		m.active[key] = make(map[string]Record[V])
	}
	m.active[key][record.Tag] = record
	m.tagKey[record.Tag] = key
	m.mu.Unlock()

	m.notify(key, ChangeAdded, record)
	return true
}

// ApplyTombstone adds tag to the tombstone set and deletes the active
// entry at whichever key holds it (tag uniqueness means at most one).
func (m *Map[K, V]) ApplyTombstone(tag string) {
	m.mu.Lock()
	m.tombstones[tag] = struct{}{}
	var removed *Record[V]
	var removedKey K
	if key, ok := m.tagKey[tag]; ok {
		if tags := m.active[key]; tags != nil {
			if rec, ok := tags[tag]; ok {
				r := rec
				removed = &r
				removedKey = key
			}
			delete(tags, tag)
			if len(tags) == 0 {
				delete(m.active, key)
			}
		}
		delete(m.tagKey, tag)
	}
	m.mu.Unlock()

	if removed != nil {
		m.notify(removedKey, ChangeRemoved, *removed)
	}
}

// MergeResult reports how many records mergeKey added vs updated.
type MergeResult struct {
	Added   int
	Updated int
}

// MergeKey applies tombstones first, drops local tags now tombstoned,
// then applies each remote record: skip if tombstoned, add if new,
// replace if the tag exists and remote.Timestamp is strictly later (a
// tie keeps the local record). hlc.Update runs for every remote
// record's timestamp regardless of outcome.
func (m *Map[K, V]) MergeKey(key K, remoteRecords []Record[V], remoteTombstones []string) (MergeResult, error) {
	m.mu.Lock()
	for _, tag := range remoteTombstones {
		m.tombstones[tag] = struct{}{}
	}
	if tags := m.active[key]; tags != nil {
		for tag := range tags {
			if _, dead := m.tombstones[tag]; dead {
				delete(tags, tag)
				delete(m.tagKey, tag)
			}
		}
		if len(tags) == 0 {
			delete(m.active, key)
		}
	}
	m.mu.Unlock()

	var result MergeResult
	var addedRecs, updatedRecs []Record[V]
	m.mu.Lock()
	for _, rec := range remoteRecords {
		if err := m.hlcUpdateLocked(rec.Timestamp); err != nil {
			m.mu.Unlock()
			return result, err
		}
		if _, dead := m.tombstones[rec.Tag]; dead {
			continue
		}
		if m.active[key] == nil {
			m.active[key] = make(map[string]Record[V])
		}
		local, exists := m.active[key][rec.Tag]
		switch {
		case !exists:
			m.active[key][rec.Tag] = rec
			m.tagKey[rec.Tag] = key
			result.Added++
			addedRecs = append(addedRecs, rec)
		case clock.Compare(rec.Timestamp, local.Timestamp) > 0:
			m.active[key][rec.Tag] = rec
			result.Updated++
			updatedRecs = append(updatedRecs, rec)
		}
		// equal timestamp + equal tag: keep local (§9 open question)
	}
	m.mu.Unlock()

	for _, rec := range addedRecs {
		m.notify(key, ChangeAdded, rec)
	}
	for _, rec := range updatedRecs {
		m.notify(key, ChangeAdded, rec)
	}
	return result, nil
}

// hlcUpdateLocked calls hlc.Update without holding m.mu across it (the
// clock has its own lock); it re-acquires mu before returning.
func (m *Map[K, V]) hlcUpdateLocked(ts clock.Timestamp) error {
	m.mu.Unlock()
	err := m.hlc.Update(ts)
	m.mu.Lock()
	return err
}

// Merge unions active records (respecting tombstones) and unions
// tombstone sets with other. Local items whose tag now appears in the
// merged tombstones are deleted.
func (m *Map[K, V]) Merge(other *Map[K, V]) error {
	other.mu.RLock()
	otherTombstones := make([]string, 0, len(other.tombstones))
	for t := range other.tombstones {
		otherTombstones = append(otherTombstones, t)
	}
	type kv struct {
		key K
		rec Record[V]
	}
	var otherRecs []kv
	for k, tags := range other.active {
		for _, rec := range tags {
			otherRecs = append(otherRecs, kv{k, rec})
		}
	}
	other.mu.RUnlock()

	m.mu.Lock()
	for _, t := range otherTombstones {
		m.tombstones[t] = struct{}{}
	}
	for k, tags := range m.active {
		for tag := range tags {
			if _, dead := m.tombstones[tag]; dead {
				delete(tags, tag)
				delete(m.tagKey, tag)
			}
		}
		if len(tags) == 0 {
			delete(m.active, k)
		}
	}
	m.mu.Unlock()

	var addedRecs []kv
	for _, e := range otherRecs {
		if err := m.hlc.Update(e.rec.Timestamp); err != nil {
			return err
		}
		m.mu.Lock()
		if _, dead := m.tombstones[e.rec.Tag]; dead {
			m.mu.Unlock()
			continue
		}
		if m.active[e.key] == nil {
			m.active[e.key] = make(map[string]Record[V])
		}
		if _, exists := m.active[e.key][e.rec.Tag]; !exists {
			m.active[e.key][e.rec.Tag] = e.rec
			m.tagKey[e.rec.Tag] = e.key
			addedRecs = append(addedRecs, e)
		}
		m.mu.Unlock()
	}

	for _, e := range addedRecs {
		m.notify(e.key, ChangeAdded, e.rec)
	}
	return nil
}

// Prune parses each tombstone tag's timestamp and removes it if strictly
// older than threshold; tags that fail to parse are silently skipped
// rather than aborting the prune pass.
func (m *Map[K, V]) Prune(olderThan clock.Timestamp) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for tag := range m.tombstones {
		ts, err := clock.Parse(tag)
		if err != nil {
			continue
		}
		if clock.Compare(ts, olderThan) < 0 {
			delete(m.tombstones, tag)
			removed++
		}
	}
	return removed
}

// Keys returns every key with at least one active tag.
func (m *Map[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]K, 0, len(m.active))
	for k := range m.active {
		out = append(out, k)
	}
	return out
}

// TombstoneCount returns the number of tombstoned tags, for monitoring
// their monotone growth between Prune runs.
func (m *Map[K, V]) TombstoneCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tombstones)
}

// IsTombstoned reports whether tag has been removed.
func (m *Map[K, V]) IsTombstoned(tag string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, dead := m.tombstones[tag]
	return dead
}

func (m *Map[K, V]) notify(key K, kind ChangeKind, rec Record[V]) {
	m.mu.RLock()
	listeners := m.listeners
	m.mu.RUnlock()
	for _, l := range listeners {
		l(key, kind, rec)
	}
}
