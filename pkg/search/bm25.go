package search

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"unicode"
)

// Okapi BM25 parameters.
const (
	paramK1      = 1.2
	paramB       = 0.75
	paramEpsilon = 0.25
)

// minTokenLength drops single-character tokens.
const minTokenLength = 2

// Field is a weighted piece of document text. Fields with a weight of zero
// or less are not indexed.
type Field struct {
	Text   string
	Weight int
}

// Document is a named collection of weighted text fields. Name identifies
// the document in results and is not itself searchable.
type Document struct {
	Name   string
	Fields []Field
}

// Result is a single search hit.
type Result struct {
	Name  string
	Score float64
}

// Index is an immutable BM25 index.
type Index struct {
	names       []string
	frequencies []map[string]int
	lengths     []int
	avgLength   float64
	idf         map[string]float64
}

// New builds an index over documents.
func New(documents []Document) *Index {
	index := &Index{
		names:       make([]string, len(documents)),
		frequencies: make([]map[string]int, len(documents)),
		lengths:     make([]int, len(documents)),
		idf:         make(map[string]float64),
	}

	documentFrequency := make(map[string]int)
	var totalLength int
	for i, document := range documents {
		index.names[i] = document.Name
		frequency := make(map[string]int)
		for _, field := range document.Fields {
			if field.Weight <= 0 {
				continue
			}
			for _, token := range Tokenize(field.Text) {
				frequency[token] += field.Weight
				index.lengths[i] += field.Weight
			}
		}
		for token := range frequency {
			documentFrequency[token]++
		}
		index.frequencies[i] = frequency
		totalLength += index.lengths[i]
	}

	if len(documents) > 0 {
		index.avgLength = float64(totalLength) / float64(len(documents))
	}

	n := float64(len(documents))
	for token, df := range documentFrequency {
		idf := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
		if idf <= 0 {
			idf = paramEpsilon
		}
		index.idf[token] = idf
	}
	return index
}

// Len returns the number of indexed documents.
func (index *Index) Len() int {
	return len(index.names)
}

// Search returns up to limit documents matching the query, best first.
// Documents with equal scores are ordered by name. A limit of zero or less
// returns every match.
func (index *Index) Search(query string, limit int) []Result {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	var results []Result
	for i := range index.names {
		if score := index.score(i, tokens); score > 0 {
			results = append(results, Result{Name: index.names[i], Score: score})
		}
	}

	slices.SortFunc(results, func(a, b Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (index *Index) score(i int, tokens []string) float64 {
	frequency := index.frequencies[i]
	length := float64(index.lengths[i])

	var score float64
	for _, token := range tokens {
		tf := float64(frequency[token])
		if tf == 0 {
			continue
		}
		norm := tf + paramK1*(1-paramB+paramB*length/index.avgLength)
		score += index.idf[token] * tf * (paramK1 + 1) / norm
	}
	return score
}

// Tokenize splits text into lowercase runs of letters and digits. Tokens
// shorter than two characters are dropped.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := words[:0]
	for _, word := range words {
		if len([]rune(word)) >= minTokenLength {
			tokens = append(tokens, word)
		}
	}
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}
