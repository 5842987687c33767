// Package merkle implements the fixed-depth hex-prefix Merkle trie used
// for anti-entropy sync. One trie is owned per map; it is kept current
// by subscribing to that map's mutation listener rather than by
// periodic rebuild.
package merkle

import (
	"fmt"
	"sort"

	"github.com/swarmguard/meshstore/internal/hashutil"
)

// Depth is the fixed trie depth: pathHex is split into this many
// one-hex-char levels before reaching a leaf.
const Depth = 3

type node[K comparable] struct {
	hash     uint32
	children map[byte]*node[K] // present for internal nodes (len(path) < Depth)
	entries  map[K]uint32      // present for leaf nodes (len(path) == Depth)
}

func newInternalNode[K comparable]() *node[K] {
	return &node[K]{children: make(map[byte]*node[K])}
}

func newLeafNode[K comparable]() *node[K] {
	return &node[K]{entries: make(map[K]uint32)}
}

func (n *node[K]) isLeaf() bool { return n.entries != nil }

// Trie is the Merkle trie over keys of type K. keyString stringifies a
// key the same way the owning map's attribute/value layer does, so both
// replicas compute identical paths and hashes for the same logical key.
type Trie[K comparable] struct {
	keyString func(K) string
	root      *node[K]
	// keyPath maps every currently-present key to the hex path it was
	// inserted under, so Remove and re-Update don't need to recompute
	// hashString(keyString(k)) to find the existing leaf (pathFor is
	// still deterministic, this is purely an optimization).
	keyPath map[K]string
}

// New constructs an empty trie. keyString must stringify a key
// identically across every replica, since both sides of a sync must
// compute the same path and hash for the same logical key.
func New[K comparable](keyString func(K) string) *Trie[K] {
	return &Trie[K]{
		keyString: keyString,
		root:      newInternalNode[K](),
		keyPath:   make(map[K]string),
	}
}

// pathFor computes the full 8-hex-char path hash for key: pathHex =
// hashString(stringify(k)) padded to 8 hex chars.
func pathFor(keyStr string) string {
	return fmt.Sprintf("%08x", hashutil.HashString(keyStr))
}

// Update inserts or replaces the entry hash for key and recomputes every
// ancestor hash up to the root.
func (t *Trie[K]) Update(key K, entryHash uint32) {
	full := pathFor(t.keyString(key))
	path := full[:Depth]
	t.root = insert(t.root, []byte(path), 0, key, entryHash)
	t.keyPath[key] = path
}

// Remove deletes key's entry, pruning any ancestor node left empty.
func (t *Trie[K]) Remove(key K) {
	path, ok := t.keyPath[key]
	if !ok {
		return
	}
	newRoot, empty := remove(t.root, []byte(path), 0, key)
	if empty {
		newRoot = newInternalNode[K]()
	}
	t.root = newRoot
	delete(t.keyPath, key)
}

func insert[K comparable](n *node[K], hexPath []byte, depth int, key K, entryHash uint32) *node[K] {
	if depth == Depth {
		if n == nil {
			n = newLeafNode[K]()
		}
		n.entries[key] = entryHash
		n.hash = combineMap(n.entries)
		return n
	}
	if n == nil {
		n = newInternalNode[K]()
	}
	c := hexPath[depth]
	n.children[c] = insert(n.children[c], hexPath, depth+1, key, entryHash)
	n.hash = combineChildren(n.children)
	return n
}

func remove[K comparable](n *node[K], hexPath []byte, depth int, key K) (*node[K], bool) {
	if n == nil {
		return nil, false
	}
	if depth == Depth {
		delete(n.entries, key)
		if len(n.entries) == 0 {
			return nil, true
		}
		n.hash = combineMap(n.entries)
		return n, false
	}
	c := hexPath[depth]
	child, empty := remove(n.children[c], hexPath, depth+1, key)
	if empty {
		delete(n.children, c)
	} else {
		n.children[c] = child
	}
	if len(n.children) == 0 {
		return nil, true
	}
	n.hash = combineChildren(n.children)
	return n, false
}

func combineMap[K comparable](entries map[K]uint32) uint32 {
	hs := make([]uint32, 0, len(entries))
	for _, h := range entries {
		hs = append(hs, h)
	}
	return hashutil.CombineHashes(hs)
}

func combineChildren[K comparable](children map[byte]*node[K]) uint32 {
	hs := make([]uint32, 0, len(children))
	for _, c := range children {
		hs = append(hs, c.hash)
	}
	return hashutil.CombineHashes(hs)
}

// GetRootHash returns the hash of the root node.
func (t *Trie[K]) GetRootHash() uint32 { return t.root.hash }

// GetNode descends path (a string of hex characters, length 0..Depth)
// and returns the hash at that node.
func (t *Trie[K]) GetNode(path string) (uint32, bool) {
	n := t.descend(path)
	if n == nil {
		return 0, false
	}
	return n.hash, true
}

func (t *Trie[K]) descend(path string) *node[K] {
	n := t.root
	for i := 0; i < len(path); i++ {
		if n == nil {
			return nil
		}
		n = n.children[path[i]]
	}
	return n
}

// GetBuckets returns hexChar -> childHash for every present child of the
// internal node at path. Valid only for len(path) < Depth.
func (t *Trie[K]) GetBuckets(path string) map[byte]uint32 {
	n := t.descend(path)
	out := make(map[byte]uint32)
	if n == nil || n.isLeaf() {
		return out
	}
	for c, child := range n.children {
		out[c] = child.hash
	}
	return out
}

// IsLeaf reports whether path addresses a leaf node (len(path) == Depth).
func (t *Trie[K]) IsLeaf(path string) bool { return len(path) == Depth }

// GetKeysInBucket returns the keys stored at the leaf addressed by path.
func (t *Trie[K]) GetKeysInBucket(path string) []K {
	n := t.descend(path)
	if n == nil || !n.isLeaf() {
		return nil
	}
	out := make([]K, 0, len(n.entries))
	for k := range n.entries {
		out = append(out, k)
	}
	return out
}

// GetEntryHashes returns key -> entryHash for the leaf addressed by path.
func (t *Trie[K]) GetEntryHashes(path string) map[K]uint32 {
	n := t.descend(path)
	out := make(map[K]uint32)
	if n == nil || !n.isLeaf() {
		return out
	}
	for k, h := range n.entries {
		out[k] = h
	}
	return out
}

// FindDiffKeys compares the local leaf at path against remoteEntries and
// returns every key whose hash differs, or that exists on only one side.
func (t *Trie[K]) FindDiffKeys(path string, remoteEntries map[K]uint32) []K {
	local := t.GetEntryHashes(path)
	seen := make(map[K]struct{}, len(local)+len(remoteEntries))
	var out []K
	for k, lh := range local {
		seen[k] = struct{}{}
		if rh, ok := remoteEntries[k]; !ok || rh != lh {
			out = append(out, k)
		}
	}
	for k := range remoteEntries {
		if _, done := seen[k]; done {
			continue
		}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		return fmt.Sprint(out[i]) < fmt.Sprint(out[j])
	})
	return out
}

// Clear resets the trie to empty.
func (t *Trie[K]) Clear() {
	t.root = newInternalNode[K]()
	t.keyPath = make(map[K]string)
}
