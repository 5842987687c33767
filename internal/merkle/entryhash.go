package merkle

import (
	"fmt"
	"sort"
	"strings"

	"github.com/swarmguard/meshstore/internal/clock"
	"github.com/swarmguard/meshstore/internal/hashutil"
)

func ttlSuffix(ttlMs uint32, hasTTL bool) string {
	if !hasTTL {
		return ""
	}
	return fmt.Sprintf(":ttl=%d", ttlMs)
}

// LWWEntryHash hashes stringify(key) | ":" | stringify(value) | ":" |
// timestamp.toString | optional ":ttl=". valueStr must be "null" for
// tombstones.
func LWWEntryHash(keyStr, valueStr string, ts clock.Timestamp, ttlMs uint32, hasTTL bool) uint32 {
	s := keyStr + ":" + valueStr + ":" + ts.String() + ttlSuffix(ttlMs, hasTTL)
	return hashutil.HashString(s)
}

// ORTagEntry is one (tag, value, timestamp, ttl) tuple contributing to an
// OR-Map key's entry hash.
type ORTagEntry struct {
	Tag       string
	ValueStr  string
	Timestamp clock.Timestamp
	TTLMs     uint32
	HasTTL    bool
}

// OREntryHash concatenates "key:"+key with, for each tag in sorted order,
// tag+":"+stringify(value)+":"+timestamp.toString+optional ttl, joined by
// "|", then hash the result. Sorting by tag is mandatory so insertion
// order never affects the hash.
func OREntryHash(keyStr string, entries []ORTagEntry) uint32 {
	sorted := make([]ORTagEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Tag < sorted[j].Tag })

	parts := make([]string, 0, len(sorted)+1)
	parts = append(parts, "key:"+keyStr)
	for _, e := range sorted {
		parts = append(parts, e.Tag+":"+e.ValueStr+":"+e.Timestamp.String()+ttlSuffix(e.TTLMs, e.HasTTL))
	}
	return hashutil.HashString(strings.Join(parts, "|"))
}
