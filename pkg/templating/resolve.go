package templating

import (
	"maps"
	"strconv"
	"strings"
)

// Env is the variable environment of a render call, mapping bound names to
// JSON values. Loop iterations receive a copy, so bindings made inside a
// loop body never reach the enclosing scope or the next iteration.
type Env map[string]any

// with returns a copy of the environment with one extra binding.
func (e Env) with(name string, value any) Env {
	child := make(Env, len(e)+1)
	maps.Copy(child, e)
	child[name] = value
	return child
}

// Find selects the value at a dotted path inside doc. A blank path selects
// the root. Trailing empty segments are dropped, so "a." selects the same
// value as "a". Each segment selects an object member by exact name or an
// array element by non-negative decimal index; the first segment that does
// not match makes the whole path absent, reported as ok == false. JSON null
// is a present value (nil, true).
func Find(path string, doc any) (any, bool) {
	if strings.TrimSpace(path) == "" {
		return doc, true
	}
	return findSegments(splitPath(path), doc)
}

// Resolve looks a path up against the environment first and the document
// second. Only the first segment is checked against the environment: a
// bound name shadows the document root for that name alone, and any
// remaining segments are selected from the variable's value.
func Resolve(path string, doc any, env Env) (any, bool) {
	if strings.TrimSpace(path) == "" {
		return doc, true
	}
	segments := splitPath(path)
	if len(segments) > 0 {
		if variable, bound := env[segments[0]]; bound {
			return findSegments(segments[1:], variable)
		}
	}
	return findSegments(segments, doc)
}

// splitPath splits a path on dots and drops trailing empty segments.
// Empty segments elsewhere are kept and never match.
func splitPath(path string) []string {
	segments := strings.Split(path, ".")
	for len(segments) > 0 && segments[len(segments)-1] == "" {
		segments = segments[:len(segments)-1]
	}
	return segments
}

func findSegments(segments []string, current any) (any, bool) {
	for _, segment := range segments {
		next, ok := selectSegment(current, segment)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func selectSegment(current any, segment string) (any, bool) {
	switch v := current.(type) {
	case map[string]any:
		value, ok := v[segment]
		return value, ok
	case []any:
		index, ok := arrayIndex(segment, len(v))
		if !ok {
			return nil, false
		}
		return v[index], true
	}
	return nil, false
}

// arrayIndex accepts only plain digit strings. A leading sign, including a
// negative literal, never selects an element.
func arrayIndex(segment string, length int) (int, bool) {
	if segment == "" {
		return 0, false
	}
	for i := 0; i < len(segment); i++ {
		if segment[i] < '0' || segment[i] > '9' {
			return 0, false
		}
	}
	index, err := strconv.Atoi(segment)
	if err != nil || index >= length {
		return 0, false
	}
	return index, true
}
