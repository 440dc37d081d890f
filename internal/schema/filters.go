package schema

import (
	"github.com/graphql-go/graphql"

	"github.com/gridsome/gridsome/internal/errdefs"
	"github.com/gridsome/gridsome/internal/store"
)

type filterKind int

const (
	filterScalar filterKind = iota
	filterList
	filterRef
	filterRefList
)

// filterSpec maps one filter input field back to the stored key.
type filterSpec struct {
	source string
	kind   filterKind
}

// filterInput builds <Type>FilterInput from builtin, inferred and declared
// fields. Object and JSON fields are not filterable.
func (b *builder) filterInput(typeName string) *graphql.InputObject {
	if in, ok := b.filters[typeName]; ok {
		return in
	}
	def := b.defs[typeName]
	specs := make(map[string]filterSpec)
	fields := graphql.InputObjectConfigFieldMap{}
	add := func(name, source string, scalar graphql.Input, scalarName string, kind filterKind) {
		if !nameRe.MatchString(name) {
			return
		}
		var op *graphql.InputObject
		switch kind {
		case filterScalar:
			op = b.scalarOperator(scalarName, scalar)
		case filterList:
			op = b.listOperator(scalarName, scalar)
		case filterRef:
			op = b.refOperator(false)
		case filterRefList:
			op = b.refOperator(true)
		}
		fields[name] = &graphql.InputObjectFieldConfig{Type: op}
		specs[name] = filterSpec{source: source, kind: kind}
	}

	add("id", "id", graphql.ID, "ID", filterScalar)
	for _, name := range []string{"path", "title", "slug", "content", "excerpt"} {
		add(name, name, graphql.String, "String", filterScalar)
	}
	add("date", "date", DateType, "Date", filterScalar)

	if snap := b.colls[typeName]; snap != nil && def.Infer {
		inferred := inferFields(snap.nodes, snap.refs)
		for _, key := range sortedKeys(inferred) {
			if def.field(key) != nil || store.IsBuiltin(key) || key == "belongsTo" {
				continue
			}
			info := inferred[key]
			if info.kind == kindRef {
				kind := filterRef
				if info.list {
					kind = filterRefList
				}
				add(key, key, nil, "", kind)
				continue
			}
			scalarName, scalar, ok := inferredScalar(info.kind)
			if !ok {
				continue
			}
			kind := filterScalar
			if info.list {
				kind = filterList
			}
			add(key, key, scalar, scalarName, kind)
		}
	}

	for _, f := range def.Fields {
		target := b.defs[f.Type.Name]
		if f.Reference || f.Type.Name == "Node" || (target != nil && target.Node) {
			kind := filterRef
			if f.Type.List {
				kind = filterRefList
			}
			add(f.Name, f.source(), nil, "", kind)
			continue
		}
		s, ok := scalarByName(f.Type.Name)
		if !ok || f.Type.Name == "JSON" {
			continue
		}
		kind := filterScalar
		if f.Type.List {
			kind = filterList
		}
		add(f.Name, f.source(), s.(graphql.Input), f.Type.Name, kind)
	}

	in := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   typeName + "FilterInput",
		Fields: fields,
	})
	b.filters[typeName] = in
	b.filterSpecs[typeName] = specs
	return in
}

func inferredScalar(kind fieldKind) (string, graphql.Input, bool) {
	switch kind {
	case kindString:
		return "String", graphql.String, true
	case kindInt:
		return "Int", graphql.Int, true
	case kindFloat:
		return "Float", graphql.Float, true
	case kindBool:
		return "Boolean", graphql.Boolean, true
	case kindDate:
		return "Date", DateType, true
	}
	return "", nil, false
}

func (b *builder) operator(name string, fields graphql.InputObjectConfigFieldMap) *graphql.InputObject {
	if op, ok := b.operators[name]; ok {
		return op
	}
	op := graphql.NewInputObject(graphql.InputObjectConfig{Name: name, Fields: fields})
	b.operators[name] = op
	return op
}

func (b *builder) scalarOperator(name string, t graphql.Input) *graphql.InputObject {
	fields := graphql.InputObjectConfigFieldMap{
		"eq":     &graphql.InputObjectFieldConfig{Type: t},
		"ne":     &graphql.InputObjectFieldConfig{Type: t},
		"in":     &graphql.InputObjectFieldConfig{Type: graphql.NewList(t)},
		"nin":    &graphql.InputObjectFieldConfig{Type: graphql.NewList(t)},
		"exists": &graphql.InputObjectFieldConfig{Type: graphql.Boolean},
	}
	if name != "Boolean" && name != "ID" {
		for _, op := range []string{"gt", "gte", "lt", "lte"} {
			fields[op] = &graphql.InputObjectFieldConfig{Type: t}
		}
	}
	if name == "String" {
		fields["regex"] = &graphql.InputObjectFieldConfig{Type: graphql.String}
	}
	return b.operator(name+"QueryOperatorInput", fields)
}

func (b *builder) listOperator(name string, t graphql.Input) *graphql.InputObject {
	return b.operator(name+"ListQueryOperatorInput", graphql.InputObjectConfigFieldMap{
		"size":         &graphql.InputObjectFieldConfig{Type: graphql.Int},
		"contains":     &graphql.InputObjectFieldConfig{Type: t},
		"containsAny":  &graphql.InputObjectFieldConfig{Type: graphql.NewList(t)},
		"containsNone": &graphql.InputObjectFieldConfig{Type: graphql.NewList(t)},
		"exists":       &graphql.InputObjectFieldConfig{Type: graphql.Boolean},
	})
}

func (b *builder) refOperator(list bool) *graphql.InputObject {
	name := "ReferenceQueryOperatorInput"
	if list {
		name = "ReferenceListQueryOperatorInput"
	}
	return b.operator(name, graphql.InputObjectConfigFieldMap{
		"eq":     &graphql.InputObjectFieldConfig{Type: graphql.ID},
		"ne":     &graphql.InputObjectFieldConfig{Type: graphql.ID},
		"in":     &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.ID)},
		"nin":    &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.ID)},
		"exists": &graphql.InputObjectFieldConfig{Type: graphql.Boolean},
	})
}

// filterQuery translates a filter argument into a store query:
//
//	{tags: {contains: "go"}, author: {eq: "1"}}
//	→ {"tags": {"$contains": "go"}, "author": {"$refEq": "1"}}
func (b *builder) filterQuery(typeName string, filter map[string]any) (store.Query, error) {
	specs := b.filterSpecs[typeName]
	q := store.Query{}
	for name, raw := range filter {
		spec, ok := specs[name]
		if !ok {
			return nil, errdefs.NewValidation("filter", name, "unknown filter field")
		}
		ops, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		cond := store.Query{}
		for op, val := range ops {
			if val == nil {
				continue
			}
			switch spec.kind {
			case filterRef:
				cond["$ref"+pascal(op)] = val
			case filterRefList:
				cond["$refList"+pascal(op)] = val
			default:
				cond["$"+op] = val
			}
		}
		if len(cond) == 0 {
			continue
		}
		if existing, ok := q[spec.source].(store.Query); ok {
			for k, v := range cond {
				existing[k] = v
			}
			continue
		}
		q[spec.source] = cond
	}
	return q, nil
}
