// Package textsim provides the text-similarity primitives shared by the
// decision agents: a TF-IDF vectorizer with cosine similarity, and a
// sequence-matcher ratio for near-duplicate text.
package textsim

import (
	"errors"
	"math"
	"sort"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/floats"
)

// ErrNotFitted is returned when Transform is called before Fit.
var ErrNotFitted = errors.New("vectorizer not fitted")

// englishStopWords is a small stop list applied when WithStopWords is set.
var englishStopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "this": true, "to": true, "was": true,
	"were": true, "will": true, "with": true,
}

// Vectorizer turns documents into L2-normalized TF-IDF vectors over a
// vocabulary learned by Fit. Safe for concurrent Transform calls once fitted.
type Vectorizer struct {
	maxFeatures int
	bigrams     bool
	stopWords   bool

	vocab  map[string]int
	idf    []float64
	fitted bool
}

// VectorizerOption configures a Vectorizer.
type VectorizerOption func(*Vectorizer)

// WithMaxFeatures caps the vocabulary at the n most frequent terms.
func WithMaxFeatures(n int) VectorizerOption {
	return func(v *Vectorizer) { v.maxFeatures = n }
}

// WithBigrams adds adjacent word pairs to the vocabulary.
func WithBigrams() VectorizerOption {
	return func(v *Vectorizer) { v.bigrams = true }
}

// WithStopWords filters common English words before counting.
func WithStopWords() VectorizerOption {
	return func(v *Vectorizer) { v.stopWords = true }
}

// NewVectorizer creates an unfitted Vectorizer.
func NewVectorizer(opts ...VectorizerOption) *Vectorizer {
	v := &Vectorizer{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Fit learns the vocabulary and inverse document frequencies from docs.
func (v *Vectorizer) Fit(docs []string) error {
	if len(docs) == 0 {
		return errors.New("fit requires at least one document")
	}

	termCounts := map[string]int{} // corpus-wide term frequency, for max_features
	docFreq := map[string]int{}
	for _, doc := range docs {
		terms := v.terms(doc)
		seen := map[string]bool{}
		for _, t := range terms {
			termCounts[t]++
			if !seen[t] {
				seen[t] = true
				docFreq[t]++
			}
		}
	}
	if len(termCounts) == 0 {
		return errors.New("fit produced an empty vocabulary")
	}

	kept := make([]string, 0, len(termCounts))
	for t := range termCounts {
		kept = append(kept, t)
	}
	// Most frequent first; ties broken alphabetically for determinism.
	sort.Slice(kept, func(i, j int) bool {
		if termCounts[kept[i]] != termCounts[kept[j]] {
			return termCounts[kept[i]] > termCounts[kept[j]]
		}
		return kept[i] < kept[j]
	})
	if v.maxFeatures > 0 && len(kept) > v.maxFeatures {
		kept = kept[:v.maxFeatures]
	}
	sort.Strings(kept)

	n := float64(len(docs))
	v.vocab = make(map[string]int, len(kept))
	v.idf = make([]float64, len(kept))
	for i, t := range kept {
		v.vocab[t] = i
		// Smoothed IDF: ln((1+n)/(1+df)) + 1.
		v.idf[i] = math.Log((1+n)/(1+float64(docFreq[t]))) + 1
	}
	v.fitted = true
	return nil
}

// Transform converts a document into an L2-normalized TF-IDF vector.
func (v *Vectorizer) Transform(doc string) ([]float64, error) {
	if !v.fitted {
		return nil, ErrNotFitted
	}

	vec := make([]float64, len(v.vocab))
	for _, t := range v.terms(doc) {
		if idx, ok := v.vocab[t]; ok {
			vec[idx] += v.idf[idx]
		}
	}
	if norm := floats.Norm(vec, 2); norm > 0 {
		floats.Scale(1/norm, vec)
	}
	return vec, nil
}

// Fitted reports whether Fit has completed.
func (v *Vectorizer) Fitted() bool { return v.fitted }

// VocabSize returns the learned vocabulary size.
func (v *Vectorizer) VocabSize() int { return len(v.vocab) }

// terms tokenizes a document into unigrams (and bigrams when enabled).
func (v *Vectorizer) terms(doc string) []string {
	words := tokenize(doc)
	if v.stopWords {
		filtered := words[:0]
		for _, w := range words {
			if !englishStopWords[w] {
				filtered = append(filtered, w)
			}
		}
		words = filtered
	}

	terms := make([]string, 0, len(words)*2)
	terms = append(terms, words...)
	if v.bigrams {
		for i := 0; i+1 < len(words); i++ {
			terms = append(terms, words[i]+" "+words[i+1])
		}
	}
	return terms
}

// tokenize lowercases and splits on non-alphanumerics, keeping words of at
// least two characters.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			words = append(words, f)
		}
	}
	return words
}

// Cosine returns the cosine similarity of two equal-length vectors, with a
// small epsilon guarding the zero-vector case.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return floats.Dot(a, b) / (floats.Norm(a, 2)*floats.Norm(b, 2) + 1e-8)
}
