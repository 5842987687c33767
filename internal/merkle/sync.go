package merkle

import (
	"github.com/swarmguard/meshstore/internal/crdt/lww"
	"github.com/swarmguard/meshstore/internal/crdt/ormap"
)

// AttachToLWWMap builds a trie for m and registers a listener that keeps
// it current incrementally on every future write, rather than rebuilding
// on a schedule. keyString/valueString stringify keys/values the same
// way across every replica holding m.
func AttachToLWWMap[K comparable, V any](m *lww.Map[K, V], keyString func(K) string, valueString func(V) string) *Trie[K] {
	t := New(keyString)
	RebuildFromLWWMap(t, m, keyString, valueString)

	m.AddListener(func(key K, old *lww.Record[V], new lww.Record[V]) {
		applyLWWRecord(t, key, new, valueString)
	})
	return t
}

// RebuildFromLWWMap resets t and repopulates it from every record
// currently held by m.
func RebuildFromLWWMap[K comparable, V any](t *Trie[K], m *lww.Map[K, V], keyString func(K) string, valueString func(V) string) {
	t.Clear()
	for _, k := range m.Keys() {
		rec, ok := m.GetRecord(k)
		if !ok {
			continue
		}
		applyLWWRecord(t, k, rec, valueString)
	}
}

func applyLWWRecord[K comparable, V any](t *Trie[K], key K, rec lww.Record[V], valueString func(V) string) {
	valueStr := "null"
	if !rec.IsTombstone() {
		valueStr = valueString(*rec.Value)
	}
	h := LWWEntryHash(t.keyString(key), valueStr, rec.Timestamp, rec.TTLMs, rec.HasTTL)
	t.Update(key, h)
}

// AttachToORMap builds a trie for m and registers a listener recomputing
// the whole key's entry hash (over every currently active tag) on every
// add/remove event.
func AttachToORMap[K comparable, V any](m *ormap.Map[K, V], keyString func(K) string, valueString func(V) string) *Trie[K] {
	t := New(keyString)
	RebuildFromORMap(t, m, keyString, valueString)

	m.AddListener(func(key K, _ ormap.ChangeKind, _ ormap.Record[V]) {
		refreshORKey(t, m, key, valueString)
	})
	return t
}

// RebuildFromORMap resets t and repopulates it from every key currently
// holding at least one active tag in m.
func RebuildFromORMap[K comparable, V any](t *Trie[K], m *ormap.Map[K, V], keyString func(K) string, valueString func(V) string) {
	t.Clear()
	for _, k := range m.Keys() {
		refreshORKey(t, m, k, valueString)
	}
}

func refreshORKey[K comparable, V any](t *Trie[K], m *ormap.Map[K, V], key K, valueString func(V) string) {
	records := m.GetRecords(key)
	if len(records) == 0 {
		t.Remove(key)
		return
	}
	keyStr := t.keyString(key)
	entries := make([]ORTagEntry, len(records))
	for i, r := range records {
		entries[i] = ORTagEntry{
			Tag:       r.Tag,
			ValueStr:  valueString(r.Value),
			Timestamp: r.Timestamp,
			TTLMs:     r.TTLMs,
			HasTTL:    r.HasTTL,
		}
	}
	t.Update(key, OREntryHash(keyStr, entries))
}
