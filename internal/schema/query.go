package schema

import (
	"context"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"

	"github.com/gridsome/gridsome/internal/errdefs"
)

// pageInfoAlias names the selection injected under the paginated field.
const pageInfoAlias = "_paginatePageInfo"

// prepared is a parsed query with @paginate rewritten away.
type prepared struct {
	doc      *ast.Document
	paginate []string // response keys leading to the paginated field
}

func (syn *Synthesizer) prepare(query string) (*prepared, error) {
	if p, ok := syn.cache.Get(query); ok {
		return p, nil
	}
	doc, err := parser.Parse(parser.ParseParams{Source: query})
	if err != nil {
		return nil, &errdefs.QueryError{Messages: []string{err.Error()}}
	}
	p := &prepared{doc: doc}
	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}
		if path := findPaginate(op.SelectionSet, nil); path != nil {
			p.paginate = path
			rewritePaginate(op, path)
			break
		}
	}
	syn.cache.Add(query, p)
	return p, nil
}

// findPaginate returns the response-key path of the first field carrying
// @paginate and strips the directive.
func findPaginate(set *ast.SelectionSet, prefix []string) []string {
	if set == nil {
		return nil
	}
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			path := append(append([]string(nil), prefix...), responseKey(s))
			for i, d := range s.Directives {
				if d.Name.Value == "paginate" {
					s.Directives = append(s.Directives[:i:i], s.Directives[i+1:]...)
					return path
				}
			}
			if found := findPaginate(s.SelectionSet, path); found != nil {
				return found
			}
		case *ast.InlineFragment:
			if found := findPaginate(s.SelectionSet, prefix); found != nil {
				return found
			}
		}
	}
	return nil
}

func responseKey(f *ast.Field) string {
	if f.Alias != nil && f.Alias.Value != "" {
		return f.Alias.Value
	}
	return f.Name.Value
}

func fieldAt(set *ast.SelectionSet, path []string) *ast.Field {
	if set == nil || len(path) == 0 {
		return nil
	}
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			if responseKey(s) != path[0] {
				continue
			}
			if len(path) == 1 {
				return s
			}
			if f := fieldAt(s.SelectionSet, path[1:]); f != nil {
				return f
			}
		case *ast.InlineFragment:
			if f := fieldAt(s.SelectionSet, path); f != nil {
				return f
			}
		}
	}
	return nil
}

// rewritePaginate adds page: $page (declaring $page when needed) and a
// hidden pageInfo { totalPages } selection to the paginated field.
func rewritePaginate(op *ast.OperationDefinition, path []string) {
	field := fieldAt(op.SelectionSet, path)
	if field == nil {
		return
	}

	hasPage := false
	for _, arg := range field.Arguments {
		if arg.Name.Value == "page" {
			hasPage = true
		}
	}
	if !hasPage {
		field.Arguments = append(field.Arguments, ast.NewArgument(&ast.Argument{
			Name:  ast.NewName(&ast.Name{Value: "page"}),
			Value: ast.NewVariable(&ast.Variable{Name: ast.NewName(&ast.Name{Value: "page"})}),
		}))
		declared := false
		for _, v := range op.VariableDefinitions {
			if v.Variable.Name.Value == "page" {
				declared = true
			}
		}
		if !declared {
			op.VariableDefinitions = append(op.VariableDefinitions, ast.NewVariableDefinition(&ast.VariableDefinition{
				Variable: ast.NewVariable(&ast.Variable{Name: ast.NewName(&ast.Name{Value: "page"})}),
				Type:     ast.NewNamed(&ast.Named{Name: ast.NewName(&ast.Name{Value: "Int"})}),
			}))
		}
	}

	if field.SelectionSet == nil {
		field.SelectionSet = ast.NewSelectionSet(&ast.SelectionSet{})
	}
	field.SelectionSet.Selections = append(field.SelectionSet.Selections, ast.NewField(&ast.Field{
		Alias: ast.NewName(&ast.Name{Value: pageInfoAlias}),
		Name:  ast.NewName(&ast.Name{Value: "pageInfo"}),
		SelectionSet: ast.NewSelectionSet(&ast.SelectionSet{
			Selections: []ast.Selection{
				ast.NewField(&ast.Field{Name: ast.NewName(&ast.Name{Value: "totalPages"})}),
			},
		}),
	}))
}

func (p *prepared) execute(ctx context.Context, s *graphql.Schema, vars map[string]any) *Result {
	if v := graphql.ValidateDocument(s, p.doc, nil); !v.IsValid {
		return &Result{Errors: messages(v.Errors)}
	}
	res := graphql.Execute(graphql.ExecuteParams{
		Schema:  *s,
		AST:     p.doc,
		Args:    vars,
		Context: ctx,
	})
	out := &Result{Errors: messages(res.Errors)}
	out.Data, _ = res.Data.(map[string]any)
	if p.paginate != nil && out.Data != nil {
		out.TotalPages = extractTotalPages(out.Data, p.paginate)
	}
	return out
}

// extractTotalPages reads and removes the injected pageInfo selection.
func extractTotalPages(data map[string]any, path []string) int {
	var cur any = data
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return 0
		}
		cur = m[key]
	}
	conn, ok := cur.(map[string]any)
	if !ok {
		return 0
	}
	info, _ := conn[pageInfoAlias].(map[string]any)
	delete(conn, pageInfoAlias)
	if n, ok := info["totalPages"].(int); ok {
		return n
	}
	return 0
}

func messages(errs []gqlerrors.FormattedError) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Message
	}
	return out
}
