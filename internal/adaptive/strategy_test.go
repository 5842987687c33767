package adaptive

import (
	"testing"
	"time"

	"github.com/swarmguard/meshstore/internal/value"
)

type address struct {
	City string
	Zip  string
}

type profile struct {
	Name        string
	Age         int
	Score       float64
	Active      bool
	CreatedAt   time.Time
	SignupDate  string
	Description string
	Address     address
	internal    string // unexported, must be skipped
}

func suggestionFor(suggestions []FieldSuggestion, path string) (FieldSuggestion, bool) {
	for _, s := range suggestions {
		if s.FieldPath == path {
			return s, true
		}
	}
	return FieldSuggestion{}, false
}

func TestDefaultIndexingStrategyTopLevel(t *testing.T) {
	sample := profile{
		Name:        "Ada",
		Age:         30,
		Score:       9.5,
		Active:      true,
		CreatedAt:   time.Now(),
		SignupDate:  "2024-01-02T15:04:05Z",
		Description: "a very long free-form note that should never be indexed at all",
	}

	suggestions := DefaultIndexingStrategy(sample, ModeTopLevel)

	if s, ok := suggestionFor(suggestions, "Name"); !ok || s.IndexType != "hash" {
		t.Fatalf("expected Name -> hash, got %+v (ok=%v)", s, ok)
	}
	if s, ok := suggestionFor(suggestions, "Age"); !ok || s.IndexType != "navigable" {
		t.Fatalf("expected Age -> navigable, got %+v (ok=%v)", s, ok)
	}
	if s, ok := suggestionFor(suggestions, "Score"); !ok || s.IndexType != "navigable" {
		t.Fatalf("expected Score -> navigable, got %+v (ok=%v)", s, ok)
	}
	if s, ok := suggestionFor(suggestions, "Active"); !ok || s.IndexType != "hash" {
		t.Fatalf("expected Active -> hash, got %+v (ok=%v)", s, ok)
	}
	if s, ok := suggestionFor(suggestions, "CreatedAt"); !ok || s.IndexType != "navigable" {
		t.Fatalf("expected CreatedAt -> navigable, got %+v (ok=%v)", s, ok)
	}
	if s, ok := suggestionFor(suggestions, "SignupDate"); !ok || s.IndexType != "navigable" {
		t.Fatalf("expected date-like string SignupDate -> navigable, got %+v (ok=%v)", s, ok)
	}
	if _, ok := suggestionFor(suggestions, "Description"); ok {
		t.Fatalf("expected Description to be skipped as long-form text")
	}
	if _, ok := suggestionFor(suggestions, "internal"); ok {
		t.Fatalf("expected unexported field to be skipped")
	}
	if _, ok := suggestionFor(suggestions, "Address"); ok {
		t.Fatalf("expected nested struct skipped entirely in ModeTopLevel")
	}
	if _, ok := suggestionFor(suggestions, "Address.City"); ok {
		t.Fatalf("expected nested fields skipped in ModeTopLevel")
	}
}

func TestDefaultIndexingStrategyModeAllRecursesNested(t *testing.T) {
	sample := profile{Address: address{City: "Metropolis", Zip: "10001"}}
	suggestions := DefaultIndexingStrategy(sample, ModeAll)

	if _, ok := suggestionFor(suggestions, "Address.City"); !ok {
		t.Fatalf("expected ModeAll to recurse into Address.City")
	}
	if _, ok := suggestionFor(suggestions, "Address.Zip"); !ok {
		t.Fatalf("expected ModeAll to recurse into Address.Zip")
	}
}

func TestDefaultIndexingStrategyNonStructReturnsNil(t *testing.T) {
	if got := DefaultIndexingStrategy(42, ModeTopLevel); got != nil {
		t.Fatalf("expected nil suggestions for a non-struct sample, got %v", got)
	}
}

func TestDefaultIndexingStrategyNilPointer(t *testing.T) {
	var p *profile
	if got := DefaultIndexingStrategy(p, ModeTopLevel); got != nil {
		t.Fatalf("expected nil suggestions for a nil pointer sample, got %v", got)
	}
}

func TestReflectExtractorTopLevelField(t *testing.T) {
	ex := ReflectExtractor[profile]("Name")
	vals := ex.Extract(profile{Name: "Grace"})
	if len(vals) != 1 {
		t.Fatalf("expected one extracted value, got %d", len(vals))
	}
	if value.Stringify(vals[0]) != "Grace" {
		t.Fatalf("expected extracted value 'Grace', got %q", value.Stringify(vals[0]))
	}
}

func TestReflectExtractorNestedDotPath(t *testing.T) {
	ex := ReflectExtractor[profile]("Address.City")
	vals := ex.Extract(profile{Address: address{City: "Gotham"}})
	if len(vals) != 1 || value.Stringify(vals[0]) != "Gotham" {
		t.Fatalf("expected nested extraction 'Gotham', got %v", vals)
	}
}

func TestReflectExtractorMissingFieldYieldsNothing(t *testing.T) {
	ex := ReflectExtractor[profile]("NoSuchField")
	vals := ex.Extract(profile{})
	if len(vals) != 0 {
		t.Fatalf("expected no values for a nonexistent field, got %v", vals)
	}
}

func TestReflectExtractorNilNestedPointer(t *testing.T) {
	type withPtr struct {
		Address *address
	}
	ex := ReflectExtractor[withPtr]("Address.City")
	vals := ex.Extract(withPtr{Address: nil})
	if len(vals) != 0 {
		t.Fatalf("expected no values when an intermediate pointer is nil, got %v", vals)
	}
}
