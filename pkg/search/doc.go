// Package search ranks documents against free-text queries with Okapi BM25.
//
// Documents are lists of weighted text fields. A field's weight repeats its
// tokens in the document, so a match in a heavier field counts for more.
// FromJSON turns a decoded JSON document into such a list, one field per
// primitive value.
//
// An Index is built once and never changes; it is safe for concurrent use.
package search
