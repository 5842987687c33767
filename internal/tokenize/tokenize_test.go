package tokenize

import (
	"reflect"
	"testing"
)

func TestWordBoundaryTokenizerSplitsOnPunctuation(t *testing.T) {
	got := WordBoundaryTokenizer{}.Tokenize("Hello, world! foo_bar 123")
	want := []string{"Hello", "world", "foo_bar", "123"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNGramTokenizerShortWordFallback(t *testing.T) {
	got := NGramTokenizer{N: 3}.Tokenize("ab cde")
	want := []string{"ab", "cde"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNGramTokenizerOverlappingGrams(t *testing.T) {
	got := NGramTokenizer{N: 3}.Tokenize("abcd")
	want := []string{"abc", "bcd"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestLengthFilterBounds(t *testing.T) {
	f := LengthFilter{Min: 2, Max: 4}
	got := f.Apply([]string{"a", "ab", "abcd", "abcde"})
	want := []string{"ab", "abcd"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestUniqueFilterPreservesFirstOccurrence(t *testing.T) {
	got := UniqueFilter{}.Apply([]string{"a", "b", "a", "c", "b"})
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestStopWordFilterDefaultsToEnglishStopwords(t *testing.T) {
	got := StopWordFilter{}.Apply([]string{"the", "quick", "fox", "is", "fast"})
	want := []string{"quick", "fox", "fast"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSearchPipelineEndToEnd(t *testing.T) {
	p := Search()
	got := p.Run("The Quick Brown Fox jumps, jumps over the lazy dog!")
	for _, tok := range got {
		if _, stop := DefaultEnglishStopwords[tok]; stop {
			t.Fatalf("expected stopwords removed, found %q in %v", tok, got)
		}
	}
	seen := make(map[string]bool)
	for _, tok := range got {
		if seen[tok] {
			t.Fatalf("expected unique tokens, saw %q twice in %v", tok, got)
		}
		seen[tok] = true
	}
	if !seen["quick"] || !seen["jumps"] {
		t.Fatalf("expected lowercase content tokens present, got %v", got)
	}
}

func TestCustomPipelineChainsFiltersInOrder(t *testing.T) {
	p := Custom(WhitespaceTokenizer{}, LowercaseFilter{}, LengthFilter{Min: 3})
	got := p.Run("Go is Great")
	want := []string{"great"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
