package pages

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/html"
	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// queryBlocks are the block names that carry a page query.
var queryBlocks = map[string]bool{"page-query": true, "graphql": true}

// ComponentExts are the file extensions treated as page components.
var ComponentExts = map[string]bool{".vue": true, ".html": true, ".md": true}

// ParseComponent extracts the page query embedded in a component. A
// component without a query block yields an empty RouteMeta.
func ParseComponent(ctx context.Context, name string, src []byte) (RouteMeta, error) {
	var (
		query string
		err   error
	)
	switch strings.ToLower(path.Ext(name)) {
	case ".md":
		query = markdownQuery(src)
	case ".vue", ".html":
		query, err = htmlQuery(ctx, src)
		if err != nil {
			return RouteMeta{}, fmt.Errorf("parse component %s: %w", name, err)
		}
	default:
		return RouteMeta{}, nil
	}
	query = strings.TrimSpace(query)
	return RouteMeta{Query: query, Paginate: paginates(query)}, nil
}

func htmlQuery(ctx context.Context, src []byte) (string, error) {
	p := sitter.NewParser()
	p.SetLanguage(html.GetLanguage())
	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		return "", err
	}
	defer tree.Close()
	return findBlock(tree.RootNode(), src), nil
}

// findBlock returns the raw text between the tags of the first query block.
func findBlock(n *sitter.Node, src []byte) string {
	if n.Type() == "element" {
		var start, end *sitter.Node
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			switch child.Type() {
			case "start_tag":
				start = child
			case "end_tag":
				end = child
			}
		}
		if start != nil && queryBlocks[tagName(start, src)] {
			stop := n.EndByte()
			if end != nil {
				stop = end.StartByte()
			}
			return string(src[start.EndByte():stop])
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if q := findBlock(n.NamedChild(i), src); q != "" {
			return q
		}
	}
	return ""
}

func tagName(tag *sitter.Node, src []byte) string {
	for i := 0; i < int(tag.NamedChildCount()); i++ {
		if child := tag.NamedChild(i); child.Type() == "tag_name" {
			return strings.ToLower(child.Content(src))
		}
	}
	return ""
}

// markdownQuery returns the first fenced block tagged page-query or graphql.
func markdownQuery(src []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	var buf bytes.Buffer
	_ = gast.Walk(doc, func(n gast.Node, entering bool) (gast.WalkStatus, error) {
		if !entering {
			return gast.WalkContinue, nil
		}
		block, ok := n.(*gast.FencedCodeBlock)
		if !ok || !queryBlocks[string(block.Language(src))] {
			return gast.WalkContinue, nil
		}
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		return gast.WalkStop, nil
	})
	return buf.String()
}

// paginates reports whether any field of the query carries @paginate.
// Unparseable queries are left for the schema to report.
func paginates(query string) bool {
	if query == "" {
		return false
	}
	doc, err := parser.Parse(parser.ParseParams{Source: query})
	if err != nil {
		return false
	}
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok && hasPaginate(op.SelectionSet) {
			return true
		}
	}
	return false
}

func hasPaginate(set *ast.SelectionSet) bool {
	if set == nil {
		return false
	}
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			for _, d := range s.Directives {
				if d.Name.Value == "paginate" {
					return true
				}
			}
			if hasPaginate(s.SelectionSet) {
				return true
			}
		case *ast.InlineFragment:
			if hasPaginate(s.SelectionSet) {
				return true
			}
		}
	}
	return false
}
