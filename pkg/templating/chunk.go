package templating

import "strings"

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// ChunkKind distinguishes literal text from directives.
type ChunkKind int

const (
	// TextChunk is literal output text.
	TextChunk ChunkKind = iota
	// DirectiveChunk is a {{...}} instruction, delimiters included.
	DirectiveChunk
)

func (k ChunkKind) String() string {
	switch k {
	case TextChunk:
		return "text"
	case DirectiveChunk:
		return "directive"
	default:
		return "unknown"
	}
}

// Chunk is a unit of parsed template content. Chunks have no relationship
// to each other other than their order, which is also render order.
type Chunk struct {
	Kind ChunkKind
	// Text is the raw content. Directive chunks keep their delimiters so
	// they can be echoed back verbatim when unrecognized.
	Text string
	// Offset is the byte position of the chunk within the template.
	Offset int
}

// Instruction returns the directive body with the delimiters and the
// surrounding whitespace removed. It returns "" for text chunks.
func (c Chunk) Instruction() string {
	if c.Kind != DirectiveChunk {
		return ""
	}
	body := strings.TrimPrefix(c.Text, openDelim)
	body = strings.TrimSuffix(body, closeDelim)
	return strings.TrimSpace(body)
}

// Parse splits a template into an ordered list of chunks.
//
// A "{{" without a matching "}}" is not an error: everything from the
// unmatched delimiter to the end of the template becomes a single directive
// chunk. No empty text chunks are produced, so adjacent directives yield
// adjacent directive chunks and an empty template yields no chunks at all.
func Parse(template string) []Chunk {
	var chunks []Chunk
	cursor := 0
	for cursor < len(template) {
		start := strings.Index(template[cursor:], openDelim)
		if start < 0 {
			chunks = append(chunks, Chunk{Kind: TextChunk, Text: template[cursor:], Offset: cursor})
			break
		}
		start += cursor
		if start > cursor {
			chunks = append(chunks, Chunk{Kind: TextChunk, Text: template[cursor:start], Offset: cursor})
		}

		end := len(template)
		if i := strings.Index(template[start+len(openDelim):], closeDelim); i >= 0 {
			end = start + len(openDelim) + i + len(closeDelim)
		}
		chunks = append(chunks, Chunk{Kind: DirectiveChunk, Text: template[start:end], Offset: start})
		cursor = end
	}
	return chunks
}
