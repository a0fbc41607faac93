package templating

import "strings"

type directiveKind int

const (
	directiveUnrecognized directiveKind = iota
	directivePrint
	directiveAssign
	directiveLoop
)

// directive is a classified instruction. Which fields are set depends on
// the kind: print uses path; assign and loop use path and name.
type directive struct {
	kind directiveKind
	path string
	name string
}

// classify turns an instruction into a directive based on its token shape:
//
//	{{path}}          print
//	{{path as name}}  assign
//	{{name in path}}  loop
//
// Keywords are matched case-insensitively. Any other shape is unrecognized.
func classify(instruction string) directive {
	tokens := strings.Fields(instruction)
	switch {
	case len(tokens) == 1:
		return directive{kind: directivePrint, path: tokens[0]}
	case len(tokens) == 3 && strings.EqualFold(tokens[1], "as"):
		return directive{kind: directiveAssign, path: tokens[0], name: tokens[2]}
	case len(tokens) == 3 && strings.EqualFold(tokens[1], "in"):
		return directive{kind: directiveLoop, path: tokens[2], name: tokens[0]}
	}
	return directive{kind: directiveUnrecognized}
}

// isLoopEnd reports whether a chunk closes a loop body.
func isLoopEnd(c Chunk) bool {
	return c.Kind == DirectiveChunk && strings.EqualFold(c.Instruction(), "end")
}
