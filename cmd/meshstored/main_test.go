package main

import (
	"testing"

	"github.com/swarmguard/meshstore/internal/index"
	"github.com/swarmguard/meshstore/internal/query"
)

func TestIndexOpForMapsIndexCapableOperators(t *testing.T) {
	cases := []struct {
		in   query.Op
		want index.Op
	}{
		{query.OpEq, index.OpEqual},
		{query.OpIn, index.OpIn},
		{query.OpGT, index.OpGT},
		{query.OpGTE, index.OpGTE},
		{query.OpLT, index.OpLT},
		{query.OpLTE, index.OpLTE},
		{query.OpBetween, index.OpBetween},
		{query.OpContains, index.OpContains},
		{query.OpContainsAll, index.OpContainsAll},
		{query.OpContainsAny, index.OpContainsAny},
	}
	for _, c := range cases {
		got, ok := indexOpFor(c.in)
		if !ok {
			t.Fatalf("expected %q to map to an index.Op", c.in)
		}
		if got != c.want {
			t.Fatalf("indexOpFor(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIndexOpForRejectsNonIndexCapableOperators(t *testing.T) {
	for _, op := range []query.Op{query.OpNeq, query.OpLike, query.OpRegex, query.OpMatch, query.OpMatchPhrase, query.OpMatchPrefix} {
		if _, ok := indexOpFor(op); ok {
			t.Fatalf("expected %q to have no index.Op equivalent", op)
		}
	}
}

func TestDocumentExtractorsCoverCategoryStatusScore(t *testing.T) {
	extractors := documentExtractors()
	for _, name := range []string{"category", "status", "score"} {
		if _, ok := extractors[name]; !ok {
			t.Fatalf("expected a %q extractor", name)
		}
	}

	d := Document{ID: "d1", Category: "news", Status: "active", Score: 4.5}
	catVal := extractors["category"].Extract(d)
	if len(catVal) != 1 {
		t.Fatalf("expected a single category value, got %v", catVal)
	}
}

func TestDocumentValueStringIsDeterministic(t *testing.T) {
	d := Document{ID: "d1", Category: "news", Status: "active", Score: 4.5}
	if documentValueString(d) != documentValueString(d) {
		t.Fatalf("expected documentValueString to be deterministic for the same value")
	}
}
