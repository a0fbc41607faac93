package templating

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrUnterminatedLoop is matched by every *UnterminatedLoopError.
	ErrUnterminatedLoop = errors.New("unterminated loop")
	// ErrStepLimit is returned when a render exceeds Renderer.MaxSteps.
	ErrStepLimit = errors.New("render step limit exceeded")
)

// UnterminatedLoopError reports a loop directive with no {{end}} after it.
type UnterminatedLoopError struct {
	// Directive is the raw text of the loop directive, delimiters included.
	Directive string
	// Offset is the byte position of the directive in the template.
	Offset int
}

func (e *UnterminatedLoopError) Error() string {
	return fmt.Sprintf("unterminated loop: %s at offset %d has no matching {{end}}", e.Directive, e.Offset)
}

func (e *UnterminatedLoopError) Unwrap() error { return ErrUnterminatedLoop }

// Renderer renders templates against JSON documents. The zero value is
// ready to use and places no bound on the work done by a single call.
//
// A Renderer holds no state between calls and may be shared between
// goroutines, as long as each call writes to its own io.Writer.
type Renderer struct {
	// MaxSteps bounds the number of chunks processed by a single render,
	// counting every pass through a loop body. Zero or negative is
	// unbounded.
	MaxSteps int
}

// Render renders template against doc with the zero Renderer.
func Render(w io.Writer, template string, doc any) error {
	return Renderer{}.Render(w, template, doc)
}

// RenderString renders into a string. Output produced before a failure is
// returned along with the error.
func RenderString(template string, doc any) (string, error) {
	var sb strings.Builder
	err := Render(&sb, template, doc)
	return sb.String(), err
}

// Render parses template and writes the rendered output to w as it is
// produced. Everything written before a failure stays written.
func (r Renderer) Render(w io.Writer, template string, doc any) error {
	return r.RenderChunks(w, Parse(template), doc)
}

// RenderChunks renders an already parsed template. The chunk slice is only
// read, so one parse can serve any number of renders.
func (r Renderer) RenderChunks(w io.Writer, chunks []Chunk, doc any) error {
	s := &renderState{w: w, doc: doc, maxSteps: r.MaxSteps}
	return s.run(chunks, Env{})
}

type renderState struct {
	w        io.Writer
	doc      any
	maxSteps int
	steps    int
	// depth is greater than zero while a loop body is being rendered.
	depth int
}

// run drives process over a chunk list until the index runs off the end.
func (s *renderState) run(chunks []Chunk, env Env) error {
	for i := 0; i < len(chunks); {
		next, err := s.process(chunks, i, env)
		if err != nil {
			return err
		}
		i = next
	}
	return nil
}

// process interprets chunks[i] and returns the index of the next chunk to
// interpret.
func (s *renderState) process(chunks []Chunk, i int, env Env) (int, error) {
	s.steps++
	if s.maxSteps > 0 && s.steps > s.maxSteps {
		return 0, fmt.Errorf("%w after %d steps", ErrStepLimit, s.maxSteps)
	}

	c := chunks[i]
	if c.Kind == TextChunk {
		_, err := io.WriteString(s.w, c.Text)
		return i + 1, err
	}

	d := classify(c.Instruction())
	switch d.kind {
	case directivePrint:
		value, ok := Resolve(d.path, s.doc, env)
		if !ok {
			return i + 1, nil
		}
		return i + 1, writeValue(s.w, value)
	case directiveAssign:
		// Assignment reads from the document root, never from variables.
		if value, ok := Find(d.path, s.doc); ok {
			env[d.name] = value
		} else {
			delete(env, d.name)
		}
		return i + 1, nil
	case directiveLoop:
		return s.loop(chunks, i, d, env)
	default:
		_, err := io.WriteString(s.w, c.Text)
		return i + 1, err
	}
}

// loop renders the loop starting at chunks[i]. The body runs up to the
// first {{end}}, with no awareness of loops inside it, so an inner loop
// takes the outer loop's {{end}} for its own. An inner loop left without
// an {{end}} by that capture runs to the end of the enclosing body.
func (s *renderState) loop(chunks []Chunk, i int, d directive, env Env) (int, error) {
	end := -1
	for j := i + 1; j < len(chunks); j++ {
		if isLoopEnd(chunks[j]) {
			end = j
			break
		}
	}
	if end < 0 {
		if s.depth == 0 {
			return 0, &UnterminatedLoopError{Directive: chunks[i].Text, Offset: chunks[i].Offset}
		}
		end = len(chunks)
	}
	body := chunks[i+1 : end]

	value, ok := Resolve(d.path, s.doc, env)
	items, isArray := value.([]any)
	if ok && isArray {
		s.depth++
		defer func() { s.depth-- }()
		for _, item := range items {
			if err := s.run(body, env.with(d.name, item)); err != nil {
				return 0, err
			}
		}
	}
	return min(end+1, len(chunks)), nil
}
