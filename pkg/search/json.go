package search

import (
	"cmp"
	"slices"

	"github.com/CTAG07/sdxstore/pkg/templating"
)

type leaf struct {
	path string
	text string
}

// FromJSON builds a Document from every primitive value in a decoded JSON
// document, in path order. weights maps a dotted path to the weight of the
// value found there; other values get a weight of 1. A weight of zero keeps
// a value out of the index. Values below member names containing dots are
// indexed too.
func FromJSON(name string, doc any, weights map[string]int) Document {
	var leaves []leaf
	templating.WalkLeaves(doc, func(path string, value any) {
		text, ok := templating.Text(value)
		if !ok || text == "" {
			return
		}
		leaves = append(leaves, leaf{path: path, text: text})
	})
	slices.SortFunc(leaves, func(a, b leaf) int {
		if c := cmp.Compare(a.path, b.path); c != 0 {
			return c
		}
		return cmp.Compare(a.text, b.text)
	})

	document := Document{Name: name, Fields: make([]Field, 0, len(leaves))}
	for _, l := range leaves {
		weight, found := weights[l.path]
		if !found {
			weight = 1
		}
		document.Fields = append(document.Fields, Field{Text: l.text, Weight: weight})
	}
	return document
}
