package adaptive

import (
	"testing"

	"github.com/swarmguard/meshstore/internal/attribute"
	"github.com/swarmguard/meshstore/internal/index"
	"github.com/swarmguard/meshstore/internal/value"
)

type account struct {
	Status string
	Score  int64
}

func statusExtractor() attribute.Extractor[account] {
	return attribute.Simple("status", func(a account) (value.Value, bool) {
		return value.Text(a.Status), true
	})
}

func scoreExtractor() attribute.Extractor[account] {
	return attribute.Simple("score", func(a account) (value.Value, bool) {
		return value.Int(a.Score), true
	})
}

func newAutoIndexSetup(opts ...AutoIndexManagerOption) (*QueryPatternTracker, *index.Registry[string, account], *AutoIndexManager[string, account], *[]string) {
	tr := NewQueryPatternTracker()
	reg := index.NewRegistry[string, account]()
	var created []string
	attrs := []RegisteredAttribute[string, account]{
		{Name: "status", Extractor: statusExtractor()},
		{Name: "score", Extractor: scoreExtractor()},
	}
	m := NewAutoIndexManager[string, account](tr, reg, attrs, func(attr, kind string) {
		created = append(created, attr+":"+kind)
	}, opts...)
	return tr, reg, m, &created
}

func TestAutoIndexCreatesOnThreshold(t *testing.T) {
	tr, reg, m, created := newAutoIndexSetup(WithThreshold(5))

	for i := 0; i < 4; i++ {
		tr.RecordQuery("status", index.OpEqual, 3, 5, false, 1)
		m.OnQuery("status", index.OpEqual)
	}
	if len(reg.All()) != 0 {
		t.Fatalf("expected no index created before threshold, got %d", len(reg.All()))
	}

	tr.RecordQuery("status", index.OpEqual, 3, 5, false, 1)
	m.OnQuery("status", index.OpEqual)

	if len(reg.All()) != 1 {
		t.Fatalf("expected one index created at threshold, got %d", len(reg.All()))
	}
	if len(*created) != 1 || (*created)[0] != "status:hash" {
		t.Fatalf("expected onCreated callback fired with status:hash, got %v", *created)
	}

	stats := tr.Stats()
	for _, s := range stats {
		if s.Attribute == "status" && !s.HasIndex {
			t.Fatalf("expected tracker HasIndex flipped true after auto-create")
		}
	}
}

func TestAutoIndexSkipsUnregisteredAttribute(t *testing.T) {
	_, reg, m, created := newAutoIndexSetup(WithThreshold(1))
	m.OnQuery("unregistered_attr", index.OpEqual)
	if len(reg.All()) != 0 {
		t.Fatalf("expected no index for an unregistered attribute")
	}
	if len(*created) != 0 {
		t.Fatalf("expected no onCreated callback for an unregistered attribute")
	}
}

func TestAutoIndexRespectsMaxIndexes(t *testing.T) {
	_, reg, m, _ := newAutoIndexSetup(WithThreshold(1), WithMaxIndexes(1))

	m.OnQuery("status", index.OpEqual)
	if len(reg.All()) != 1 {
		t.Fatalf("expected first index created, got %d", len(reg.All()))
	}

	m.OnQuery("score", index.OpGT)
	if len(reg.All()) != 1 {
		t.Fatalf("expected maxIndexes=1 to block the second index, got %d", len(reg.All()))
	}
}

func TestAutoIndexDedupesAlreadyIndexedKind(t *testing.T) {
	_, reg, m, created := newAutoIndexSetup(WithThreshold(1))

	m.OnQuery("status", index.OpEqual)
	if len(reg.All()) != 1 {
		t.Fatalf("expected exactly one index after first trigger")
	}

	// OpHas also maps to "hash" (per indexTypeFor); status already has a
	// hash index, so a second trigger on the same attribute/kind must not
	// create a duplicate.
	m.OnQuery("status", index.OpHas)
	if len(reg.All()) != 1 {
		t.Fatalf("expected no duplicate hash index on status, got %d", len(reg.All()))
	}
	if len(*created) != 1 {
		t.Fatalf("expected only one onCreated invocation, got %d", len(*created))
	}
}

func TestAutoIndexSuggestionsDelegatesToAdvisor(t *testing.T) {
	tr, _, m, _ := newAutoIndexSetup(WithThreshold(1000))
	for i := 0; i < 150; i++ {
		tr.RecordQuery("score", index.OpGT, 15, 10, false, 1)
	}
	suggestions := m.Suggestions(Options{})
	if len(suggestions) != 1 || suggestions[0].Attribute != "score" {
		t.Fatalf("expected manager.Suggestions to surface the tracked score pattern, got %v", suggestions)
	}
}
