package index

import (
	"sort"
	"sync"

	"github.com/swarmguard/meshstore/internal/resultset"
)

// Registry maps attributeName -> ordered list of indexes. It owns the
// IDTable every index attached to it shares, so a record's
// key maps to the same dense id across all indexes on one map.
type Registry[K comparable, R any] struct {
	mu      sync.RWMutex
	byAttr  map[string][]Index[K, R]
	all     []Index[K, R]
	seen    map[Index[K, R]]struct{}
	ids     *resultset.IDTable[K]
}

// NewRegistry builds an empty registry.
func NewRegistry[K comparable, R any]() *Registry[K, R] {
	return &Registry[K, R]{
		byAttr: make(map[string][]Index[K, R]),
		seen:   make(map[Index[K, R]]struct{}),
		ids:    resultset.NewIDTable[K](),
	}
}

// IDs exposes the shared id table so index constructors outside this
// package can be wired to it.
func (r *Registry[K, R]) IDs() *resultset.IDTable[K] { return r.ids }

// Register attaches idx under its attribute. Duplicate registration of
// the same index instance is a no-op.
func (r *Registry[K, R]) Register(idx Index[K, R]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.seen[idx]; dup {
		return
	}
	r.seen[idx] = struct{}{}
	r.byAttr[idx.Attribute()] = append(r.byAttr[idx.Attribute()], idx)
	r.all = append(r.all, idx)
}

// Indexes returns every index registered for attr.
func (r *Registry[K, R]) Indexes(attr string) []Index[K, R] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Index[K, R], len(r.byAttr[attr]))
	copy(out, r.byAttr[attr])
	return out
}

// Attributes returns every attribute name that has at least one index.
func (r *Registry[K, R]) Attributes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byAttr))
	for a := range r.byAttr {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// FindBestIndex returns the indexes on attr supporting op, sorted by
// getRetrievalCost() ascending.
func (r *Registry[K, R]) FindBestIndex(attr string, op Op) []Index[K, R] {
	r.mu.RLock()
	candidates := r.byAttr[attr]
	r.mu.RUnlock()

	var out []Index[K, R]
	for _, idx := range candidates {
		if idx.SupportsQuery(op) {
			out = append(out, idx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RetrievalCost() < out[j].RetrievalCost() })
	return out
}

// OnAdd fans out a record-added lifecycle event to every attached index.
func (r *Registry[K, R]) OnAdd(key K, record R) {
	r.mu.RLock()
	all := r.all
	r.mu.RUnlock()
	for _, idx := range all {
		idx.Add(key, record)
	}
}

// OnUpdate fans out a record-updated lifecycle event.
func (r *Registry[K, R]) OnUpdate(key K, oldRecord, newRecord R) {
	r.mu.RLock()
	all := r.all
	r.mu.RUnlock()
	for _, idx := range all {
		idx.Update(key, &oldRecord, &newRecord)
	}
}

// OnRemove fans out a record-removed lifecycle event.
func (r *Registry[K, R]) OnRemove(key K, record R) {
	r.mu.RLock()
	all := r.all
	r.mu.RUnlock()
	for _, idx := range all {
		idx.Remove(key, record)
	}
	r.ids.Release(key)
}

// Clear drops all state from every attached index.
func (r *Registry[K, R]) Clear() {
	r.mu.RLock()
	all := r.all
	r.mu.RUnlock()
	for _, idx := range all {
		idx.Clear()
	}
}

// All returns every registered index across every attribute.
func (r *Registry[K, R]) All() []Index[K, R] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Index[K, R], len(r.all))
	copy(out, r.all)
	return out
}
