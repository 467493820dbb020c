// Package render turns stored component content into HTML for the
// server-rendered pages: syntax-highlighted text blocks, sanitized markdown
// descriptions, and a few humanized template helpers.
package render

import (
	"bytes"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/dustin/go-humanize"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/compopedia/compopedia/internal/model"
)

// StyleName is the chroma style used for highlighted blocks.
const StyleName = "github"

// Renderer is safe for concurrent use once built.
type Renderer struct {
	markdown  goldmark.Markdown
	policy    *bluemonday.Policy
	formatter *chromahtml.Formatter
	style     *chroma.Style
	logger    *slog.Logger
}

func New(logger *slog.Logger) *Renderer {
	return &Renderer{
		markdown:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:    bluemonday.UGCPolicy(),
		formatter: chromahtml.New(chromahtml.WithClasses(false), chromahtml.TabWidth(2)),
		style:     styles.Get(StyleName),
		logger:    logger,
	}
}

// lexerFor picks a lexer for a block. Terminal blocks are always shell
// sessions; unknown languages fall back to plain text.
func lexerFor(blockType, language string) chroma.Lexer {
	name := strings.ToLower(strings.TrimSpace(language))
	if blockType == model.BlockTypeTerminal {
		name = "bash"
	}
	lexer := lexers.Get(name)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return chroma.Coalesce(lexer)
}

// Highlight renders one text block as a highlighted <pre>. On failure the
// content is returned escaped inside a plain <pre>.
func (r *Renderer) Highlight(block model.TextBlock) template.HTML {
	lexer := lexerFor(block.BlockType, block.Language)

	it, err := lexer.Tokenise(nil, block.Content)
	if err == nil {
		var buf bytes.Buffer
		if err = r.formatter.Format(&buf, r.style, it); err == nil {
			return template.HTML(buf.String())
		}
	}

	r.logger.Warn("highlighting failed, falling back to plain text",
		slog.String("language", block.Language),
		slog.String("error", err.Error()),
	)
	return template.HTML("<pre>" + template.HTMLEscapeString(block.Content) + "</pre>")
}

// Markdown renders a description as sanitized HTML.
func (r *Renderer) Markdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(src), &buf); err != nil {
		r.logger.Warn("markdown conversion failed", slog.String("error", err.Error()))
		return template.HTML("<p>" + template.HTMLEscapeString(src) + "</p>")
	}
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes()))
}

// FuncMap exposes the renderer to html/template.
func (r *Renderer) FuncMap() template.FuncMap {
	return template.FuncMap{
		"highlight": r.Highlight,
		"markdown":  r.Markdown,
		"ago":       Ago,
		"bytes":     Bytes,
		"add":       func(a, b int) int { return a + b },
	}
}

// Ago formats t relative to now, e.g. "3 hours ago".
func Ago(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.Time(t)
}

// Bytes formats a byte count, e.g. "83 kB".
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
