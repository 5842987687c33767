// Package lww implements the Last-Write-Wins register map CRDT: one
// record per key, tombstoned deletes, TTL expiry, and timestamp-ordered
// merge.
package lww

import (
	"errors"
	"math"
	"sync"

	"github.com/swarmguard/meshstore/internal/clock"
)

// ErrInvalidTTL is returned by Set when ttlMs is not a positive finite
// number.
var ErrInvalidTTL = errors.New("lww: invalid ttl")

// Record is LWWRecord<V>: a value (nil means tombstone), its timestamp,
// and an optional TTL in milliseconds.
type Record[V any] struct {
	Value     *V
	Timestamp clock.Timestamp
	TTLMs     uint32
	HasTTL    bool
}

// IsTombstone reports whether this record represents a delete.
func (r Record[V]) IsTombstone() bool { return r.Value == nil }

// expiredStrict reports whether the record's TTL boundary lies strictly
// before nowMillis (millis+ttlMs < now); expiredInclusive, used by Get,
// also counts the boundary itself (<=).
func (r Record[V]) expiredStrict(nowMillis int64) bool {
	if !r.HasTTL {
		return false
	}
	return r.Timestamp.Millis+int64(r.TTLMs) < nowMillis
}

func (r Record[V]) expiredInclusive(nowMillis int64) bool {
	if !r.HasTTL {
		return false
	}
	return r.Timestamp.Millis+int64(r.TTLMs) <= nowMillis
}

// Listener observes a key's lifecycle transition; old is nil on first
// write, new is nil is never true (a remove still produces a tombstone
// record) — new is always present.
type Listener[K comparable, V any] func(key K, old *Record[V], new Record[V])

// Map is the LWW-Map: K -> LWWRecord<V>.
type Map[K comparable, V any] struct {
	mu        sync.RWMutex
	hlc       *clock.Clock
	records   map[K]Record[V]
	listeners []Listener[K, V]
	nowMillis func() int64
}

// New constructs an LWW-Map sharing hlc with every other map/structure
// bound to the same clock: the HLC is the only shared mutable singleton
// between maps.
func New[K comparable, V any](hlc *clock.Clock) *Map[K, V] {
	return &Map[K, V]{
		hlc:       hlc,
		records:   make(map[K]Record[V]),
		nowMillis: systemNowMillis,
	}
}

// NewWithNowFunc is New but with an injectable wall-clock source, for
// deterministic TTL-expiry tests.
func NewWithNowFunc[K comparable, V any](hlc *clock.Clock, nowMillis func() int64) *Map[K, V] {
	m := New[K, V](hlc)
	m.nowMillis = nowMillis
	return m
}

// AddListener registers a callback fired after every mutation, in the
// order mutation -> HLC update -> (index/merkle hooks live one layer up
// in the map wrapper) -> listener notification.
func (m *Map[K, V]) AddListener(l Listener[K, V]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Set writes a new record stamped with hlc.Now(). ttlMs of 0 means no
// TTL; a non-zero ttlMs must be positive (the uint32 type already
// excludes negative and non-finite values by construction).
func (m *Map[K, V]) Set(key K, v V, ttlMs uint32) (Record[V], error) {
	ts, err := m.hlc.Now()
	if err != nil {
		return Record[V]{}, err
	}
	rec := Record[V]{Value: &v, Timestamp: ts}
	if ttlMs > 0 {
		rec.HasTTL = true
		rec.TTLMs = ttlMs
	}

	m.mu.Lock()
	old, hadOld := m.records[key]
	m.records[key] = rec
	m.mu.Unlock()

	m.notify(key, old, hadOld, rec)
	return rec, nil
}

// SetFloatTTL validates a float64 TTL input before delegating to Set,
// surfacing ErrInvalidTTL for ttlMs <= 0 or non-finite.
func (m *Map[K, V]) SetFloatTTL(key K, v V, ttlMs float64) (Record[V], error) {
	if ttlMs <= 0 || math.IsInf(ttlMs, 0) || math.IsNaN(ttlMs) {
		return Record[V]{}, ErrInvalidTTL
	}
	return m.Set(key, v, uint32(ttlMs))
}

// Get returns the live value for key, excluding tombstones and
// TTL-expired records (expiry is inclusive: millis+ttlMs <= now).
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()
	var zero V
	if !ok || rec.IsTombstone() {
		return zero, false
	}
	if rec.expiredInclusive(m.nowMillis()) {
		return zero, false
	}
	return *rec.Value, true
}

// GetRecord returns the raw record including tombstones and expired
// records; no TTL check is applied.
func (m *Map[K, V]) GetRecord(key K) (Record[V], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	return rec, ok
}

// Remove writes a tombstone with hlc.Now(), even if key was absent.
func (m *Map[K, V]) Remove(key K) (Record[V], error) {
	ts, err := m.hlc.Now()
	if err != nil {
		return Record[V]{}, err
	}
	rec := Record[V]{Value: nil, Timestamp: ts}

	m.mu.Lock()
	old, hadOld := m.records[key]
	m.records[key] = rec
	m.mu.Unlock()

	m.notify(key, old, hadOld, rec)
	return rec, nil
}

// Merge applies a remote record: hlc.Update(remote.Timestamp) always
// runs; the remote record replaces local iff it is strictly later, or no
// local record exists. Returns whether the remote record was applied.
func (m *Map[K, V]) Merge(key K, remote Record[V]) (bool, error) {
	if err := m.hlc.Update(remote.Timestamp); err != nil {
		return false, err
	}

	m.mu.Lock()
	old, hadOld := m.records[key]
	apply := !hadOld || clock.Compare(remote.Timestamp, old.Timestamp) > 0
	if apply {
		m.records[key] = remote
	}
	m.mu.Unlock()

	if apply {
		m.notify(key, old, hadOld, remote)
	}
	return apply, nil
}

// Prune removes tombstones strictly older than threshold, returning the
// keys removed. Live records are never removed by Prune.
func (m *Map[K, V]) Prune(olderThan clock.Timestamp) []K {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []K
	for k, rec := range m.records {
		if rec.IsTombstone() && clock.Compare(rec.Timestamp, olderThan) < 0 {
			delete(m.records, k)
			removed = append(removed, k)
		}
	}
	return removed
}

// Clear drops all records.
func (m *Map[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[K]Record[V])
}

// Entries iterates live, non-tombstone, non-expired (k, v) pairs.
func (m *Map[K, V]) Entries() []Entry[K, V] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.nowMillis()
	out := make([]Entry[K, V], 0, len(m.records))
	for k, rec := range m.records {
		if rec.IsTombstone() || rec.expiredInclusive(now) {
			continue
		}
		out = append(out, Entry[K, V]{Key: k, Value: *rec.Value})
	}
	return out
}

// Entry is a live (key, value) pair yielded by Entries.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Keys returns every key with a record, live or tombstoned.
func (m *Map[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]K, 0, len(m.records))
	for k := range m.records {
		out = append(out, k)
	}
	return out
}

func (m *Map[K, V]) notify(key K, old Record[V], hadOld bool, new Record[V]) {
	m.mu.RLock()
	listeners := m.listeners
	m.mu.RUnlock()
	var oldPtr *Record[V]
	if hadOld {
		oldPtr = &old
	}
	for _, l := range listeners {
		l(key, oldPtr, new)
	}
}
