package templating

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     []Chunk
	}{
		{
			name:     "empty",
			template: "",
			want:     nil,
		},
		{
			name:     "text only",
			template: "hello",
			want:     []Chunk{{Kind: TextChunk, Text: "hello"}},
		},
		{
			name:     "directive between text",
			template: "a{{b}}c",
			want: []Chunk{
				{Kind: TextChunk, Text: "a"},
				{Kind: DirectiveChunk, Text: "{{b}}", Offset: 1},
				{Kind: TextChunk, Text: "c", Offset: 6},
			},
		},
		{
			name:     "adjacent directives",
			template: "{{a}}{{b}}",
			want: []Chunk{
				{Kind: DirectiveChunk, Text: "{{a}}"},
				{Kind: DirectiveChunk, Text: "{{b}}", Offset: 5},
			},
		},
		{
			name:     "unterminated directive swallows the rest",
			template: "x{{ y }z and more",
			want: []Chunk{
				{Kind: TextChunk, Text: "x"},
				{Kind: DirectiveChunk, Text: "{{ y }z and more", Offset: 1},
			},
		},
		{
			name:     "stray close delimiter is text",
			template: "a}}b",
			want:     []Chunk{{Kind: TextChunk, Text: "a}}b"}},
		},
		{
			name:     "extra brace after directive",
			template: "{{a}}}",
			want: []Chunk{
				{Kind: DirectiveChunk, Text: "{{a}}"},
				{Kind: TextChunk, Text: "}", Offset: 5},
			},
		},
		{
			name:     "triple open brace",
			template: "{{{a}}",
			want:     []Chunk{{Kind: DirectiveChunk, Text: "{{{a}}"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.template)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.template, diff)
			}
		})
	}
}

func TestParse_ChunksReassembleTemplate(t *testing.T) {
	templates := []string{
		"",
		"plain",
		"{{a}} and {{b as c}}{{d in e}}{{end}}",
		"tail {{ never closed",
		"}}{{}}{{",
	}
	for _, template := range templates {
		var rebuilt string
		for _, c := range Parse(template) {
			rebuilt += c.Text
		}
		if rebuilt != template {
			t.Errorf("chunks of %q reassemble to %q", template, rebuilt)
		}
	}
}

func TestChunk_Instruction(t *testing.T) {
	tests := []struct {
		chunk Chunk
		want  string
	}{
		{Chunk{Kind: DirectiveChunk, Text: "{{  a as b }}"}, "a as b"},
		{Chunk{Kind: DirectiveChunk, Text: "{{ y"}, "y"},
		{Chunk{Kind: DirectiveChunk, Text: "{{}}"}, ""},
		{Chunk{Kind: TextChunk, Text: "{{a}}"}, ""},
	}
	for _, tt := range tests {
		if got := tt.chunk.Instruction(); got != tt.want {
			t.Errorf("Instruction() of %q = %q, want %q", tt.chunk.Text, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		instruction string
		want        directive
	}{
		{"a.b", directive{kind: directivePrint, path: "a.b"}},
		{"x as v", directive{kind: directiveAssign, path: "x", name: "v"}},
		{"x AS v", directive{kind: directiveAssign, path: "x", name: "v"}},
		{"item in list", directive{kind: directiveLoop, path: "list", name: "item"}},
		{"item In list", directive{kind: directiveLoop, path: "list", name: "item"}},
		{"", directive{kind: directiveUnrecognized}},
		{"a b", directive{kind: directiveUnrecognized}},
		{"a to b", directive{kind: directiveUnrecognized}},
		{"a in b c", directive{kind: directiveUnrecognized}},
	}
	for _, tt := range tests {
		got := classify(tt.instruction)
		if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(directive{})); diff != "" {
			t.Errorf("classify(%q) mismatch (-want +got):\n%s", tt.instruction, diff)
		}
	}
}
