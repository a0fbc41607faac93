/*
Package templating renders plain-text templates against JSON documents.

A template is literal text with directives between {{ and }}:

	{{path}}              print the value at a dotted path
	{{path as name}}      bind name to the value at path in the document
	{{name in path}}      repeat the following chunks once per array element
	{{end}}               close the loop body

Paths select object members by name and array elements by index, as in
"answers.0.value". A name bound by an assignment or loop shadows the
document root for that first segment only. Missing values print as nothing.
Objects, arrays and null print as compact JSON with sorted keys.

Loops do not nest: a loop body runs to the first {{end}} after it. A loop
with no {{end}} at all is the only template error reported to the caller.
Anything that does not look like a directive is written out unchanged.

TemplateManager loads a directory of named templates and renders them as
text, JSON, HTML or Markdown.
*/
package templating
