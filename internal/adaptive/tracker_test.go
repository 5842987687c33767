package adaptive

import (
	"testing"
	"time"

	"github.com/swarmguard/meshstore/internal/index"
)

func TestRecordQueryAccumulatesStats(t *testing.T) {
	tr := NewQueryPatternTracker()
	for i := 0; i < 10; i++ {
		tr.RecordQuery("category", index.OpEqual, 5, 20, false, 1)
	}
	stats := tr.Stats()
	if len(stats) != 1 {
		t.Fatalf("expected one tracked pattern, got %d", len(stats))
	}
	s := stats[0]
	if s.QueryCount != 10 {
		t.Fatalf("expected count 10, got %d", s.QueryCount)
	}
	if s.AverageCost != 5 {
		t.Fatalf("expected average cost 5, got %v", s.AverageCost)
	}
	if s.EstimatedCardinality != 20 {
		t.Fatalf("expected estimated cardinality 20, got %d", s.EstimatedCardinality)
	}
}

func TestRecordQuerySamplingExtrapolates(t *testing.T) {
	tr := NewQueryPatternTracker()
	tr.RecordQuery("category", index.OpEqual, 5, 20, false, 10)
	stats := tr.Stats()
	if stats[0].QueryCount != 10 {
		t.Fatalf("expected extrapolated count 10 from one sampled call at rate 10, got %d", stats[0].QueryCount)
	}
}

func TestUpdateIndexStatus(t *testing.T) {
	tr := NewQueryPatternTracker()
	tr.RecordQuery("category", index.OpEqual, 5, 20, false, 1)
	tr.UpdateIndexStatus("category", index.OpEqual, true)
	stats := tr.Stats()
	if !stats[0].HasIndex {
		t.Fatalf("expected HasIndex true after UpdateIndexStatus")
	}
}

func TestStaleEntriesPrunedOnRead(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tr := NewQueryPatternTracker(WithStatsTTL(time.Hour), withNowFunc(func() time.Time { return now }))
	tr.RecordQuery("category", index.OpEqual, 5, 20, false, 1)
	if len(tr.Stats()) != 1 {
		t.Fatalf("expected entry present before TTL elapses")
	}
	now = now.Add(2 * time.Hour)
	if len(tr.Stats()) != 0 {
		t.Fatalf("expected stale entry pruned after TTL elapses")
	}
}

func TestMaxTrackedPatternsEvictsLRU(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	cur := base
	tr := NewQueryPatternTracker(WithMaxTrackedPatterns(2), withNowFunc(func() time.Time { return cur }))

	tr.RecordQuery("a", index.OpEqual, 1, 1, false, 1)
	cur = cur.Add(time.Minute)
	tr.RecordQuery("b", index.OpEqual, 1, 1, false, 1)
	cur = cur.Add(time.Minute)
	// adding a third distinct pattern must evict "a" (least recently queried).
	tr.RecordQuery("c", index.OpEqual, 1, 1, false, 1)

	stats := tr.Stats()
	if len(stats) != 2 {
		t.Fatalf("expected exactly 2 tracked patterns, got %d", len(stats))
	}
	for _, s := range stats {
		if s.Attribute == "a" {
			t.Fatalf("expected least-recently-queried pattern 'a' to be evicted")
		}
	}
}

func TestRecordCompoundQuery(t *testing.T) {
	tr := NewQueryPatternTracker()
	tr.RecordCompoundQuery([]string{"age", "status"}, 12, 5, false, 1)
	tr.RecordCompoundQuery([]string{"status", "age"}, 8, 5, false, 1)

	stats := tr.CompoundStats()
	if len(stats) != 1 {
		t.Fatalf("expected order-independent compound key to merge into one entry, got %d", len(stats))
	}
	if stats[0].QueryCount != 2 {
		t.Fatalf("expected count 2, got %d", stats[0].QueryCount)
	}
	attrs := tr.CompoundAttributes(stats[0].Attribute)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes in compound key, got %v", attrs)
	}
}
