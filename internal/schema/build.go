package schema

import (
	"strings"

	"github.com/graphql-go/graphql"

	"github.com/gridsome/gridsome/internal/errdefs"
	"github.com/gridsome/gridsome/internal/store"
)

var reservedTypes = map[string]bool{
	"Query": true, "Node": true, "PageInfo": true, "Metadata": true, "Date": true,
	"JSON": true, "SortOrder": true, "SortArgument": true, "BelongsToConnection": true,
	"BelongsToEdge": true, "String": true, "Int": true, "Float": true, "Boolean": true, "ID": true,
}

// collectionSnapshot is what the builder reads from one collection.
type collectionSnapshot struct {
	coll  *store.Collection
	nodes []*store.Node
	refs  map[string]string
}

type builder struct {
	syn   *Synthesizer
	defs  map[string]*TypeDef
	order []string // node type names in collection order
	colls map[string]*collectionSnapshot

	nodeIface   *graphql.Interface
	objects     map[string]*graphql.Object // node and declared object types
	nested      map[string]*graphql.Object // inferred nested objects
	filters     map[string]*graphql.InputObject
	filterSpecs map[string]map[string]filterSpec
	operators   map[string]*graphql.InputObject
	connections map[string]*graphql.Object
	belongsTo   *graphql.Object
}

func (syn *Synthesizer) build() (*graphql.Schema, error) {
	b := &builder{
		syn:         syn,
		defs:        make(map[string]*TypeDef),
		colls:       make(map[string]*collectionSnapshot),
		objects:     make(map[string]*graphql.Object),
		nested:      make(map[string]*graphql.Object),
		filters:     make(map[string]*graphql.InputObject),
		filterSpecs: make(map[string]map[string]filterSpec),
		operators:   make(map[string]*graphql.InputObject),
		connections: make(map[string]*graphql.Object),
	}
	if err := b.collect(); err != nil {
		return nil, err
	}
	if err := b.applyExtensions(); err != nil {
		return nil, err
	}
	if err := b.validate(); err != nil {
		return nil, err
	}

	b.nodeIface = graphql.NewInterface(graphql.InterfaceConfig{
		Name: "Node",
		Fields: graphql.Fields{
			"id": &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		},
		ResolveType: func(p graphql.ResolveTypeParams) *graphql.Object {
			if n, ok := p.Value.(*store.Node); ok {
				return b.objects[n.TypeName]
			}
			return nil
		},
	})
	for _, name := range sortedKeys(b.defs) {
		def := b.defs[name]
		if def.Node {
			b.objects[name] = b.nodeObject(def)
		} else {
			b.objects[name] = b.declaredObject(def)
		}
	}
	b.belongsTo = b.connection("BelongsTo", b.nodeIface)

	query := graphql.NewObject(graphql.ObjectConfig{
		Name:   "Query",
		Fields: graphql.FieldsThunk(b.rootFields),
	})

	types := make([]graphql.Type, 0, len(b.objects))
	for _, name := range sortedKeys(b.objects) {
		types = append(types, b.objects[name])
	}

	schema, err := graphql.NewSchema(graphql.SchemaConfig{Query: query, Types: types})
	if err != nil {
		return nil, errdefs.NewConfig("schema", "%v", err)
	}
	return &schema, nil
}

// collect snapshots the store and merges explicit declarations.
func (b *builder) collect() error {
	syn := b.syn
	syn.mu.RLock()
	for name, def := range syn.decls {
		b.defs[name] = cloneTypeDef(def)
	}
	syn.mu.RUnlock()

	for _, c := range syn.store.Collections() {
		name := c.TypeName()
		def, ok := b.defs[name]
		if !ok {
			def = &TypeDef{Name: name, Infer: true}
			b.defs[name] = def
		}
		def.Node = true
		for field, typ := range c.Fields() {
			if def.field(field) != nil {
				continue
			}
			ref, err := ParseTypeRef(typ)
			if err != nil {
				return errdefs.NewConfig(name+"."+field, "%v", err)
			}
			def.Fields = append(def.Fields, &FieldDef{Name: field, Type: ref})
		}
		b.colls[name] = &collectionSnapshot{coll: c, nodes: c.Nodes(), refs: c.Refs()}
		b.order = append(b.order, name)
	}
	return nil
}

func (b *builder) applyExtensions() error {
	for _, name := range sortedKeys(b.defs) {
		def := b.defs[name]
		if err := b.syn.exts.applyType(def); err != nil {
			return err
		}
		for _, f := range def.Fields {
			if err := b.syn.exts.applyField(def, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) validate() error {
	for _, name := range sortedKeys(b.defs) {
		def := b.defs[name]
		if reservedTypes[name] {
			return errdefs.NewConfig(name, "type name is reserved")
		}
		if !nameRe.MatchString(name) {
			return errdefs.NewConfig(name, "invalid type name")
		}
		if def.Node {
			if _, ok := b.colls[name]; !ok {
				return errdefs.NewConfig(name, "implements Node but has no collection")
			}
		}
		for _, f := range def.Fields {
			if !b.knownType(f.Type.Name) {
				return errdefs.NewConfig(name+"."+f.Name, "unknown type %s", f.Type.Name)
			}
			if f.Reference {
				target, ok := b.defs[f.Type.Name]
				if !ok || !target.Node {
					return errdefs.NewConfig(name+"."+f.Name, "@reference target %s is not a node type", f.Type.Name)
				}
			}
		}
	}
	return nil
}

func (b *builder) knownType(name string) bool {
	if _, ok := scalarByName(name); ok {
		return true
	}
	_, ok := b.defs[name]
	return ok || name == "Node"
}

func scalarByName(name string) (graphql.Output, bool) {
	switch name {
	case "String":
		return graphql.String, true
	case "Int":
		return graphql.Int, true
	case "Float":
		return graphql.Float, true
	case "Boolean":
		return graphql.Boolean, true
	case "ID":
		return graphql.ID, true
	case "Date":
		return DateType, true
	case "JSON":
		return JSONType, true
	}
	return nil, false
}

// nodeObject builds the object type of a collection.
func (b *builder) nodeObject(def *TypeDef) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name:       def.Name,
		Interfaces: []*graphql.Interface{b.nodeIface},
		IsTypeOf: func(p graphql.IsTypeOfParams) bool {
			n, ok := p.Value.(*store.Node)
			return ok && n.TypeName == def.Name
		},
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			fields := b.builtinFields()
			snap := b.colls[def.Name]
			if def.Infer {
				inferred := inferFields(snap.nodes, snap.refs)
				for _, key := range sortedKeys(inferred) {
					if def.field(key) != nil || store.IsBuiltin(key) || key == "belongsTo" {
						continue
					}
					info := inferred[key]
					fields[key] = &graphql.Field{
						Type:    b.infoType(def.Name, key, info),
						Resolve: b.inferredResolver(key, info),
					}
				}
			}
			for _, f := range def.Fields {
				fields[f.Name] = b.declaredField(f)
			}
			return fields
		}),
	})
}

// declaredObject builds a plain object type from a declaration.
func (b *builder) declaredObject(def *TypeDef) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: def.Name,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			fields := make(graphql.Fields, len(def.Fields))
			for _, f := range def.Fields {
				fields[f.Name] = b.declaredField(f)
			}
			return fields
		}),
	})
}

func (b *builder) builtinFields() graphql.Fields {
	return graphql.Fields{
		"id":      &graphql.Field{Type: graphql.NewNonNull(graphql.ID), Resolve: nodeAttr("id")},
		"path":    &graphql.Field{Type: graphql.String, Resolve: nodeAttr("path")},
		"title":   &graphql.Field{Type: graphql.String, Resolve: nodeAttr("title")},
		"slug":    &graphql.Field{Type: graphql.String, Resolve: nodeAttr("slug")},
		"date":    &graphql.Field{Type: DateType, Resolve: nodeAttr("date")},
		"content": &graphql.Field{Type: graphql.String, Resolve: nodeAttr("content")},
		"excerpt": &graphql.Field{Type: graphql.String, Resolve: nodeAttr("excerpt")},
		"belongsTo": &graphql.Field{
			Type:    graphql.NewNonNull(b.belongsTo),
			Args:    listArgsConfig(nil),
			Resolve: b.resolveBelongsTo,
		},
	}
}

// declaredField turns an explicit field into a GraphQL field.
func (b *builder) declaredField(f *FieldDef) *graphql.Field {
	var out graphql.Output
	if s, ok := scalarByName(f.Type.Name); ok {
		out = s
	} else if f.Type.Name == "Node" {
		out = b.nodeIface
	} else {
		out = b.objects[f.Type.Name]
	}
	if f.Type.List {
		out = graphql.NewList(out)
	}
	if f.Type.NonNull {
		out = graphql.NewNonNull(out)
	}

	target := b.defs[f.Type.Name]
	isRef := f.Reference || f.Type.Name == "Node" || (target != nil && target.Node)
	return &graphql.Field{Type: out, Resolve: b.declaredResolver(f, isRef)}
}

// infoType maps an inferred shape to an output type. Nested objects are
// named after their parent: Post.meta → PostMeta.
func (b *builder) infoType(parent, field string, info *fieldInfo) graphql.Output {
	var out graphql.Output
	switch info.kind {
	case kindString:
		out = graphql.String
	case kindInt:
		out = graphql.Int
	case kindFloat:
		out = graphql.Float
	case kindBool:
		out = graphql.Boolean
	case kindDate:
		out = DateType
	case kindRef:
		out = b.refType(info.refTypes)
	case kindObject:
		name := parent + pascal(field)
		if reservedTypes[name] {
			out = JSONType
		} else {
			out = b.nestedObject(name, info)
		}
	default:
		out = JSONType
	}
	if info.list && out != JSONType {
		out = graphql.NewList(out)
	}
	return out
}

func (b *builder) refType(targets []string) graphql.Output {
	if len(targets) == 1 {
		if obj, ok := b.objects[targets[0]]; ok && b.defs[targets[0]].Node {
			return obj
		}
		return JSONType
	}
	for _, t := range targets {
		if def, ok := b.defs[t]; !ok || !def.Node {
			return JSONType
		}
	}
	return b.nodeIface
}

func (b *builder) nestedObject(name string, info *fieldInfo) graphql.Output {
	if obj, ok := b.nested[name]; ok {
		return obj
	}
	if _, taken := b.defs[name]; taken {
		return JSONType
	}
	fields := graphql.Fields{}
	for _, key := range sortedKeys(info.children) {
		if !nameRe.MatchString(key) {
			continue
		}
		child := info.children[key]
		fields[key] = &graphql.Field{
			Type:    b.infoType(name, key, child),
			Resolve: b.inferredResolver(key, child),
		}
	}
	if len(fields) == 0 {
		return JSONType
	}
	obj := graphql.NewObject(graphql.ObjectConfig{Name: name, Fields: fields})
	b.nested[name] = obj
	return obj
}

// connection builds <Name>Connection and <Name>Edge around node.
func (b *builder) connection(name string, node graphql.Output) *graphql.Object {
	if c, ok := b.connections[name]; ok {
		return c
	}
	edge := graphql.NewObject(graphql.ObjectConfig{
		Name: name + "Edge",
		Fields: graphql.Fields{
			"node":     &graphql.Field{Type: graphql.NewNonNull(node)},
			"next":     &graphql.Field{Type: node},
			"previous": &graphql.Field{Type: node},
		},
	})
	conn := graphql.NewObject(graphql.ObjectConfig{
		Name: name + "Connection",
		Fields: graphql.Fields{
			"totalCount": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"pageInfo":   &graphql.Field{Type: graphql.NewNonNull(pageInfoType)},
			"edges":      &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(edge)))},
		},
	})
	b.connections[name] = conn
	return conn
}

func (b *builder) rootFields() graphql.Fields {
	fields := graphql.Fields{}
	for _, name := range b.order {
		obj := b.objects[name]
		fields[lcfirst(name)] = &graphql.Field{
			Type: obj,
			Args: graphql.FieldConfigArgument{
				"id":       &graphql.ArgumentConfig{Type: graphql.ID},
				"path":     &graphql.ArgumentConfig{Type: graphql.String},
				"nullable": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
			},
			Resolve: b.resolveSingle(name),
		}
		fields["all"+name] = &graphql.Field{
			Type:    graphql.NewNonNull(b.connection(name, obj)),
			Args:    listArgsConfig(b.filterInput(name)),
			Resolve: b.resolveAll(name),
		}
	}

	// metadata is always present so the root type is never empty
	var mdType graphql.Output = JSONType
	if info := inferValue(b.syn.store.Metadata()); info != nil && info.kind == kindObject {
		mdType = b.nestedObject("Metadata", info)
	}
	fields["metadata"] = &graphql.Field{
		Type:    mdType,
		Resolve: func(graphql.ResolveParams) (any, error) { return b.syn.store.Metadata(), nil },
	}
	return fields
}

func listArgsConfig(filter *graphql.InputObject) graphql.FieldConfigArgument {
	args := graphql.FieldConfigArgument{
		"sortBy":  &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: "date"},
		"order":   &graphql.ArgumentConfig{Type: sortOrderType, DefaultValue: "DESC"},
		"sort":    &graphql.ArgumentConfig{Type: graphql.NewList(sortArgumentType)},
		"skip":    &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
		"limit":   &graphql.ArgumentConfig{Type: graphql.Int},
		"perPage": &graphql.ArgumentConfig{Type: graphql.Int},
		"page":    &graphql.ArgumentConfig{Type: graphql.Int},
	}
	if filter != nil {
		args["filter"] = &graphql.ArgumentConfig{Type: filter}
	}
	return args
}

func cloneTypeDef(def *TypeDef) *TypeDef {
	cp := *def
	cp.Extensions = append([]ExtensionUse(nil), def.Extensions...)
	cp.Fields = make([]*FieldDef, len(def.Fields))
	for i, f := range def.Fields {
		fc := *f
		fc.Extensions = append([]ExtensionUse(nil), f.Extensions...)
		cp.Fields[i] = &fc
	}
	return &cp
}

func pascal(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func lcfirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
