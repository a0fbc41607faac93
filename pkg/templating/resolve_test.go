package templating

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustDecode(tb testing.TB, text string) any {
	tb.Helper()
	doc, err := DecodeBytes([]byte(text))
	if err != nil {
		tb.Fatalf("failed to decode %s: %v", text, err)
	}
	return doc
}

func TestResolve(t *testing.T) {
	doc := mustDecode(t, `{
		"a": {"b": "x", "n": null},
		"arr": ["p", "q", "r"],
		"user": {"name": "doc user"},
		"rows": [{"id": 7}]
	}`)
	env := Env{
		"user": map[string]any{"name": "bound user"},
		"item": []any{"zero", "one"},
	}

	tests := []struct {
		name   string
		path   string
		env    Env
		want   any
		wantOk bool
	}{
		{"member", "a.b", nil, "x", true},
		{"missing member", "a.c", nil, nil, false},
		{"index", "arr.1", nil, "q", true},
		{"index out of bounds", "arr.5", nil, nil, false},
		{"negative index", "arr.-1", nil, nil, false},
		{"signed index", "arr.+1", nil, nil, false},
		{"index into object", "a.0", nil, nil, false},
		{"member of primitive", "a.b.c", nil, nil, false},
		{"short circuit", "missing.a.b", nil, nil, false},
		{"null is present", "a.n", nil, nil, true},
		{"nested array member", "rows.0.id", nil, json.Number("7"), true},
		{"variable", "user", env, map[string]any{"name": "bound user"}, true},
		{"variable member", "user.name", env, "bound user", true},
		{"variable index", "item.1", env, "one", true},
		{"variable missing member", "user.email", env, nil, false},
		{"unbound name reads document", "a.b", env, "x", true},
		{"document without env", "user.name", nil, "doc user", true},
		{"trailing dot", "a.", nil, map[string]any{"b": "x", "n": nil}, true},
		{"trailing dots after member", "a.b..", nil, "x", true},
		{"inner empty segment", "a..b", nil, nil, false},
		{"only dots selects root", "..", nil, doc, true},
		{"variable trailing dot", "item.", env, []any{"zero", "one"}, true},
		{"variable member trailing dot", "user.name.", env, "bound user", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.path, doc, tt.env)
			if ok != tt.wantOk {
				t.Fatalf("Resolve(%q) ok = %v, want %v", tt.path, ok, tt.wantOk)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Resolve(%q) mismatch (-want +got):\n%s", tt.path, diff)
			}
		})
	}
}

func TestResolve_BlankPathIsRoot(t *testing.T) {
	docs := []string{`{"a":1}`, `[1,2]`, `"text"`, `3`, `true`}
	for _, text := range docs {
		doc := mustDecode(t, text)
		for _, path := range []string{"", "   "} {
			got, ok := Resolve(path, doc, Env{"x": "y"})
			if !ok {
				t.Errorf("Resolve(%q) on %s reported absent", path, text)
				continue
			}
			if diff := cmp.Diff(doc, got); diff != "" {
				t.Errorf("Resolve(%q) on %s mismatch (-want +got):\n%s", path, text, diff)
			}
		}
	}
}

func TestFind_IgnoresEnvironmentNames(t *testing.T) {
	doc := mustDecode(t, `{"v": "doc"}`)
	got, ok := Find("v", doc)
	if !ok || got != "doc" {
		t.Errorf("Find(\"v\") = %v, %v, want doc, true", got, ok)
	}
}

func TestEnv_WithCopies(t *testing.T) {
	parent := Env{"a": "1"}
	child := parent.with("b", "2")
	child["a"] = "changed"

	if parent["a"] != "1" {
		t.Errorf("parent binding changed to %v", parent["a"])
	}
	if _, ok := parent["b"]; ok {
		t.Error("child binding leaked into parent")
	}
	if child["b"] != "2" {
		t.Errorf("expected child binding b=2, got %v", child["b"])
	}
}
