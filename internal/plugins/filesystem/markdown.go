package filesystem

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/adrg/frontmatter"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/gridsome/gridsome/internal/errdefs"
	"github.com/gridsome/gridsome/internal/store"
)

const MarkdownName = "transformer-markdown"

// MarkdownOptions configure the markdown transformer.
type MarkdownOptions struct {
	// ExcerptLength caps generated excerpts, in runes. Default 200.
	ExcerptLength int `json:"excerptLength,omitempty"`
}

// Markdown turns markdown files with optional frontmatter into node input.
// Frontmatter keys id, title, slug, date, path and excerpt fill the node
// attributes; everything else becomes a field.
type Markdown struct {
	md      goldmark.Markdown
	excerpt int
}

func NewMarkdown(opts MarkdownOptions) *Markdown {
	if opts.ExcerptLength <= 0 {
		opts.ExcerptLength = 200
	}
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
		excerpt: opts.ExcerptLength,
	}
}

func (m *Markdown) Name() string { return MarkdownName }

func (m *Markdown) MimeTypes() []string { return []string{"text/markdown", "text/x-markdown"} }

func (m *Markdown) Parse(ctx context.Context, src []byte) (store.NodeInput, error) {
	var matter map[string]any
	body, err := frontmatter.Parse(bytes.NewReader(src), &matter)
	if err != nil {
		return store.NodeInput{}, fmt.Errorf("frontmatter: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return store.NodeInput{}, err
	}

	doc := m.md.Parser().Parse(text.NewReader(body))
	var html bytes.Buffer
	if err := m.md.Renderer().Render(&html, body, doc); err != nil {
		return store.NodeInput{}, fmt.Errorf("render markdown: %w", err)
	}

	in := store.NodeInput{Content: html.String()}
	fields := make(map[string]any, len(matter))
	for k, v := range matter {
		v = normalize(v)
		switch k {
		case "id":
			in.ID = fmt.Sprint(v)
		case "title":
			in.Title = fmt.Sprint(v)
		case "slug":
			in.Slug = fmt.Sprint(v)
		case "path":
			in.Path = fmt.Sprint(v)
		case "excerpt":
			in.Excerpt = fmt.Sprint(v)
		case "date":
			if in.Date, err = parseDate(v); err != nil {
				return store.NodeInput{}, err
			}
		default:
			fields[k] = v
		}
	}
	if len(fields) > 0 {
		in.Fields = fields
	}
	if in.Excerpt == "" {
		in.Excerpt = truncate(firstParagraph(doc, body), m.excerpt)
	}
	return in, nil
}

var dateFormats = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

func parseDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return d, nil
	case string:
		for _, layout := range dateFormats {
			if t, err := time.Parse(layout, d); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, errdefs.NewValidation("markdown", "date", "unparseable date %v", v)
}

// normalize turns the map[any]any values YAML decoding produces into
// map[string]any, recursively.
func normalize(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	}
	return v
}

func firstParagraph(doc ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if p, ok := n.(*ast.Paragraph); ok {
			_ = ast.Walk(p, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
				if t, ok := c.(*ast.Text); ok && entering {
					b.Write(t.Segment.Value(src))
					if t.SoftLineBreak() || t.HardLineBreak() {
						b.WriteByte(' ')
					}
				}
				return ast.WalkContinue, nil
			})
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)[:n]
	if i := strings.LastIndexByte(string(r), ' '); i > 0 {
		return strings.TrimRight(string(r)[:i], " ,.;:") + "…"
	}
	return string(r) + "…"
}
