package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/ohler55/ojg/jp"

	"github.com/gridsome/gridsome/internal/store"
)

// readValue reads a field or dotted path from a node or a nested map.
func readValue(parent any, path string) (any, bool) {
	if strings.Contains(path, ".") {
		x, err := jp.ParseString("$." + path)
		if err != nil {
			return nil, false
		}
		var doc any = parent
		if n, ok := parent.(*store.Node); ok {
			doc = n.Doc()
		}
		res := x.Get(doc)
		switch len(res) {
		case 0:
			return nil, false
		case 1:
			return res[0], res[0] != nil
		}
		return res, true
	}
	switch p := parent.(type) {
	case *store.Node:
		return p.Get(path)
	case map[string]any:
		v, ok := p[path]
		return v, ok && v != nil
	}
	return nil, false
}

func nodeAttr(name string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		n, ok := p.Source.(*store.Node)
		if !ok {
			return nil, nil
		}
		v, ok := n.Get(name)
		if !ok {
			return nil, nil
		}
		return v, nil
	}
}

// inferredResolver reads key from the parent and resolves references.
func (b *builder) inferredResolver(key string, info *fieldInfo) graphql.FieldResolveFn {
	if info.kind != kindRef || b.refType(info.refTypes) == JSONType {
		return func(p graphql.ResolveParams) (any, error) {
			v, _ := readValue(p.Source, key)
			return v, nil
		}
	}
	target := ""
	if len(info.refTypes) == 1 {
		target = info.refTypes[0]
	}
	return b.refResolver(key, target, "", info.list)
}

func (b *builder) declaredResolver(f *FieldDef, isRef bool) graphql.FieldResolveFn {
	if !isRef {
		src := f.source()
		return func(p graphql.ResolveParams) (any, error) {
			v, _ := readValue(p.Source, src)
			return v, nil
		}
	}
	target := f.Type.Name
	if target == "Node" {
		target = ""
	}
	return b.refResolver(f.source(), target, f.RefBy, f.Type.List)
}

// refResolver turns stored markers or ids into nodes. Dangling references
// resolve to null or are left out of lists.
func (b *builder) refResolver(src, target, by string, list bool) graphql.FieldResolveFn {
	resolver := b.syn.store.Resolver()
	return func(p graphql.ResolveParams) (any, error) {
		v, ok := readValue(p.Source, src)
		if list {
			if !ok {
				return []*store.Node{}, nil
			}
			return resolver.Many(v, target, by), nil
		}
		if !ok {
			return nil, nil
		}
		n, found := resolver.One(v, target, by)
		if !found {
			return nil, nil
		}
		return n, nil
	}
}

func (b *builder) resolveSingle(typeName string) graphql.FieldResolveFn {
	st := b.syn.store
	return func(p graphql.ResolveParams) (any, error) {
		nullable, _ := p.Args["nullable"].(bool)
		var (
			n   *store.Node
			err error
		)
		switch {
		case p.Args["id"] != nil:
			n, err = st.GetNode(typeName, fmt.Sprint(p.Args["id"]))
		case p.Args["path"] != nil:
			n, err = st.GetNodeByPath(fmt.Sprint(p.Args["path"]))
			if err == nil && n.TypeName != typeName {
				n, err = nil, store.ErrNotFound
			}
		default:
			return nil, fmt.Errorf("%s: id or path is required", lcfirst(typeName))
		}
		if errors.Is(err, store.ErrNotFound) {
			if nullable {
				return nil, nil
			}
			return nil, fmt.Errorf("%s not found", typeName)
		}
		return n, err
	}
}

func (b *builder) resolveAll(typeName string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		args, err := parseListArgs(p.Args)
		if err != nil {
			return nil, err
		}
		ch := b.colls[typeName].coll.Chain()
		if f, ok := p.Args["filter"].(map[string]any); ok {
			q, err := b.filterQuery(typeName, f)
			if err != nil {
				return nil, err
			}
			ch.Find(q)
		}
		return paginate(ch, args)
	}
}

func (b *builder) resolveBelongsTo(p graphql.ResolveParams) (any, error) {
	n, ok := p.Source.(*store.Node)
	if !ok {
		return nil, nil
	}
	args, err := parseListArgs(p.Args)
	if err != nil {
		return nil, err
	}
	return paginate(store.ChainOf(b.syn.store.BelongsTo(n.UID)), args)
}

// listArgs are the arguments shared by every connection field.
type listArgs struct {
	sort    []store.SortSpec
	skip    int
	limit   int
	perPage int
	page    int
}

func parseListArgs(args map[string]any) (listArgs, error) {
	var out listArgs
	out.skip, _ = args["skip"].(int)
	out.limit, _ = args["limit"].(int)
	out.perPage, _ = args["perPage"].(int)
	out.page, _ = args["page"].(int)
	if out.skip < 0 || out.limit < 0 || out.perPage < 0 || out.page < 0 {
		return out, errors.New("skip, limit, perPage and page must not be negative")
	}

	if specs, ok := args["sort"].([]any); ok && len(specs) > 0 {
		for _, raw := range specs {
			spec, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			by, _ := spec["by"].(string)
			order, _ := spec["order"].(string)
			out.sort = append(out.sort, store.SortSpec{Field: by, Desc: order != "ASC"})
		}
		return out, nil
	}
	if by, _ := args["sortBy"].(string); by != "" {
		order, _ := args["order"].(string)
		out.sort = []store.SortSpec{{Field: by, Desc: order != "ASC"}}
	}
	return out, nil
}

// paginate evaluates a chain into a connection value.
func paginate(ch *store.Chain, a listArgs) (map[string]any, error) {
	total, err := ch.Count()
	if err != nil {
		return nil, err
	}
	ch.Sort(a.sort...)

	// limit caps the items paged over, not only the first page.
	items := max(total-a.skip, 0)
	if a.limit > 0 {
		items = min(items, a.limit)
	}

	offset, limit := a.skip, a.limit
	page := max(a.page, 1)
	if a.perPage > 0 {
		offset += (page - 1) * a.perPage
		limit = min(a.perPage, items-(page-1)*a.perPage)
	}
	nodes := []*store.Node{}
	if a.perPage == 0 || limit > 0 {
		nodes, err = ch.Offset(offset).Limit(limit).Data()
		if err != nil {
			return nil, err
		}
	}

	perPage := a.perPage
	totalPages := 1
	if perPage > 0 {
		totalPages = max((items+perPage-1)/perPage, 1)
	} else {
		perPage = len(nodes)
		if limit > 0 {
			perPage = limit
		}
	}

	edges := make([]map[string]any, len(nodes))
	for i, n := range nodes {
		edge := map[string]any{"node": n}
		if i > 0 {
			edge["previous"] = nodes[i-1]
		}
		if i < len(nodes)-1 {
			edge["next"] = nodes[i+1]
		}
		edges[i] = edge
	}

	return map[string]any{
		"totalCount": total,
		"edges":      edges,
		"pageInfo": map[string]any{
			"totalPages":      totalPages,
			"totalItems":      items,
			"perPage":         perPage,
			"currentPage":     page,
			"isFirst":         page == 1,
			"isLast":          page >= totalPages,
			"hasPreviousPage": page > 1,
			"hasNextPage":     page < totalPages,
		},
	}, nil
}
