// Package tokenize implements the tokenizer + filter chain the inverted
// index builds its postings from.
package tokenize

import (
	"strings"
	"unicode"
)

// Tokenizer splits raw text into a sequence of tokens.
type Tokenizer interface {
	Tokenize(text string) []string
}

// Filter transforms or drops tokens in a chain; a Filter may shrink the
// slice (drop) but never needs to preserve input order guarantees beyond
// "stable relative order of survivors".
type Filter interface {
	Apply(tokens []string) []string
}

// Pipeline tokenizes and then runs the filter chain in order.
type Pipeline struct {
	Tokenizer Tokenizer
	Filters   []Filter
}

// Run tokenizes text and applies every filter in order.
func (p Pipeline) Run(text string) []string {
	toks := p.Tokenizer.Tokenize(text)
	for _, f := range p.Filters {
		toks = f.Apply(toks)
	}
	return toks
}

// --- Tokenizers ---

// WhitespaceTokenizer splits on runs of Unicode whitespace.
type WhitespaceTokenizer struct{}

func (WhitespaceTokenizer) Tokenize(text string) []string {
	return strings.Fields(text)
}

// WordBoundaryTokenizer splits on any rune that is not alphanumeric and
// not underscore, discarding the separators.
type WordBoundaryTokenizer struct{}

func (WordBoundaryTokenizer) Tokenize(text string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return toks
}

// NGramTokenizer emits overlapping character n-grams of size N (N>=1)
// from each whitespace-separated word.
type NGramTokenizer struct{ N int }

func (t NGramTokenizer) Tokenize(text string) []string {
	n := t.N
	if n < 1 {
		n = 1
	}
	var toks []string
	for _, word := range strings.Fields(text) {
		runes := []rune(word)
		if len(runes) < n {
			toks = append(toks, word)
			continue
		}
		for i := 0; i+n <= len(runes); i++ {
			toks = append(toks, string(runes[i:i+n]))
		}
	}
	return toks
}

// --- Filters ---

// LowercaseFilter lowercases every token.
type LowercaseFilter struct{}

func (LowercaseFilter) Apply(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = strings.ToLower(t)
	}
	return out
}

// TrimFilter trims leading/trailing whitespace from every token, dropping
// tokens that become empty.
type TrimFilter struct{}

func (TrimFilter) Apply(tokens []string) []string {
	out := tokens[:0:0]
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// LengthFilter drops tokens shorter than Min or longer than Max (0 means
// unbounded on that side).
type LengthFilter struct {
	Min, Max int
}

func (f LengthFilter) Apply(tokens []string) []string {
	out := tokens[:0:0]
	for _, t := range tokens {
		n := len([]rune(t))
		if f.Min > 0 && n < f.Min {
			continue
		}
		if f.Max > 0 && n > f.Max {
			continue
		}
		out = append(out, t)
	}
	return out
}

// UniqueFilter drops duplicate tokens, preserving first occurrence order.
type UniqueFilter struct{}

func (UniqueFilter) Apply(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// DefaultEnglishStopwords is the built-in English stop-word set used by
// StopWordFilter's zero value.
var DefaultEnglishStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "if": {}, "in": {}, "into": {}, "is": {},
	"it": {}, "no": {}, "not": {}, "of": {}, "on": {}, "or": {}, "such": {},
	"that": {}, "the": {}, "their": {}, "then": {}, "there": {}, "these": {},
	"they": {}, "this": {}, "to": {}, "was": {}, "will": {}, "with": {},
}

// StopWordFilter drops tokens present in Words (case-sensitive); a nil
// Words map uses DefaultEnglishStopwords.
type StopWordFilter struct {
	Words map[string]struct{}
}

func (f StopWordFilter) Apply(tokens []string) []string {
	words := f.Words
	if words == nil {
		words = DefaultEnglishStopwords
	}
	out := tokens[:0:0]
	for _, t := range tokens {
		if _, stop := words[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// --- Named bundles ---

// Simple is whitespace tokenization + lowercase only.
func Simple() Pipeline {
	return Pipeline{Tokenizer: WhitespaceTokenizer{}, Filters: []Filter{LowercaseFilter{}}}
}

// Search is word-boundary tokenization + lowercase + stopwords + minimum
// length 2 + unique, tuned for full-text search matching.
func Search() Pipeline {
	return Pipeline{
		Tokenizer: WordBoundaryTokenizer{},
		Filters: []Filter{
			LowercaseFilter{},
			StopWordFilter{},
			LengthFilter{Min: 2},
			UniqueFilter{},
		},
	}
}

// Minimal is word-boundary tokenization with no filters.
func Minimal() Pipeline {
	return Pipeline{Tokenizer: WordBoundaryTokenizer{}}
}

// Custom builds a pipeline from caller-supplied tokenizer and filters.
func Custom(t Tokenizer, filters ...Filter) Pipeline {
	return Pipeline{Tokenizer: t, Filters: filters}
}
