package templating

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Format is the output format of a template, taken from its file suffix.
type Format string

const (
	FormatText     Format = "txt"
	FormatJSON     Format = "json"
	FormatHTML     Format = "html"
	FormatMarkdown Format = "md"
)

// templateSuffix precedes the format extension in template file names,
// as in "receipt.tmpl.md".
const templateSuffix = ".tmpl."

var formats = []Format{FormatText, FormatJSON, FormatHTML, FormatMarkdown}

// ParseFormat accepts a format name with or without a leading dot. An empty
// string is FormatText.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	if s == "" {
		return FormatText, nil
	}
	for _, f := range formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatFromName returns the format of a template file name such as
// "summary.tmpl.html". Names without a known suffix report ok == false.
func FormatFromName(name string) (Format, bool) {
	i := strings.LastIndex(name, templateSuffix)
	if i <= 0 || i+len(templateSuffix) == len(name) {
		return "", false
	}
	f, err := ParseFormat(name[i+len(templateSuffix):])
	if err != nil {
		return "", false
	}
	return f, true
}

// ContentType is the media type of rendered output in this format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatHTML, FormatMarkdown:
		return "text/html; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown

	htmlPolicyOnce sync.Once
	htmlPolicy     *bluemonday.Policy
)

func markdownConverter() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdown
}

func htmlSanitizer() *bluemonday.Policy {
	htmlPolicyOnce.Do(func() {
		htmlPolicy = bluemonday.UGCPolicy()
	})
	return htmlPolicy
}

// renderFormat renders chunks and post-processes the output for the
// format. Text and JSON stream straight to w. Markdown and sanitized HTML
// are buffered, since both need the complete output first.
func renderFormat(w io.Writer, r Renderer, chunks []Chunk, doc any, format Format, sanitize bool) error {
	switch format {
	case FormatMarkdown:
		var rendered bytes.Buffer
		if err := r.RenderChunks(&rendered, chunks, doc); err != nil {
			return err
		}
		var converted bytes.Buffer
		if err := markdownConverter().Convert(rendered.Bytes(), &converted); err != nil {
			return fmt.Errorf("failed to convert markdown: %w", err)
		}
		_, err := w.Write(htmlSanitizer().SanitizeBytes(converted.Bytes()))
		return err
	case FormatHTML:
		if !sanitize {
			return r.RenderChunks(w, chunks, doc)
		}
		var rendered bytes.Buffer
		if err := r.RenderChunks(&rendered, chunks, doc); err != nil {
			return err
		}
		_, err := w.Write(htmlSanitizer().SanitizeBytes(rendered.Bytes()))
		return err
	default:
		return r.RenderChunks(w, chunks, doc)
	}
}
