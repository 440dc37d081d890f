package schema

import (
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"

	"github.com/gridsome/gridsome/internal/errdefs"
)

// TypeRef is a declared GraphQL type such as "[Author!]".
type TypeRef struct {
	Name    string
	List    bool
	NonNull bool
}

func (t TypeRef) String() string {
	s := t.Name
	if t.List {
		s = "[" + s + "]"
	}
	if t.NonNull {
		s += "!"
	}
	return s
}

// ParseTypeRef parses a type string. Inner non-null markers are accepted
// and dropped.
func ParseTypeRef(s string) (TypeRef, error) {
	var ref TypeRef
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutSuffix(s, "!"); ok {
		ref.NonNull = true
		s = rest
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		ref.List = true
		s = strings.TrimSuffix(strings.TrimSpace(s[1:len(s)-1]), "!")
	}
	if !nameRe.MatchString(s) {
		return TypeRef{}, errdefs.NewConfig(s, "invalid type reference")
	}
	ref.Name = s
	return ref, nil
}

// TypeDef is an explicitly declared object type.
type TypeDef struct {
	Name       string
	Node       bool // implements Node and is backed by a collection
	Infer      bool // add inferred fields next to the declared ones
	Extensions []ExtensionUse
	Fields     []*FieldDef
}

func (t *TypeDef) field(name string) *FieldDef {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FieldDef is an explicitly declared field.
type FieldDef struct {
	Name       string
	Type       TypeRef
	Source     string // field path read from the parent value; defaults to Name
	Reference  bool   // resolve stored ids into nodes of Type.Name
	RefBy      string // key matched by references; "" means id
	Extensions []ExtensionUse
}

func (f *FieldDef) source() string {
	if f.Source != "" {
		return f.Source
	}
	return f.Name
}

// parseSDL reads object type definitions:
//
//	type Post implements Node @infer(enabled: false) {
//	  author: Author @reference(by: "slug")
//	}
func parseSDL(sdl string) ([]*TypeDef, error) {
	doc, err := parser.Parse(parser.ParseParams{Source: sdl})
	if err != nil {
		return nil, errdefs.NewConfig("schema", "parse type definitions: %v", err)
	}
	seen := make(map[string]bool)
	var out []*TypeDef
	for _, def := range doc.Definitions {
		obj, ok := def.(*ast.ObjectDefinition)
		if !ok {
			return nil, errdefs.NewConfig("schema", "only object type definitions are supported, got %s", def.GetKind())
		}
		name := obj.Name.Value
		if seen[name] {
			return nil, errdefs.NewConfig(name, "duplicate type definition")
		}
		seen[name] = true

		td := &TypeDef{Name: name, Infer: true}
		for _, iface := range obj.Interfaces {
			if iface.Name.Value == "Node" {
				td.Node = true
			}
		}
		td.Extensions = directiveUses(obj.Directives)
		for _, fd := range obj.Fields {
			f := &FieldDef{
				Name:       fd.Name.Value,
				Type:       typeRefFromAST(fd.Type),
				Extensions: directiveUses(fd.Directives),
			}
			if td.field(f.Name) != nil {
				return nil, errdefs.NewConfig(name+"."+f.Name, "duplicate field definition")
			}
			td.Fields = append(td.Fields, f)
		}
		out = append(out, td)
	}
	return out, nil
}

func typeRefFromAST(t ast.Type) TypeRef {
	var ref TypeRef
	if nn, ok := t.(*ast.NonNull); ok {
		ref.NonNull = true
		t = nn.Type
	}
	if l, ok := t.(*ast.List); ok {
		ref.List = true
		t = l.Type
		if nn, ok := t.(*ast.NonNull); ok {
			t = nn.Type
		}
	}
	if named, ok := t.(*ast.Named); ok {
		ref.Name = named.Name.Value
	}
	return ref
}

func directiveUses(dirs []*ast.Directive) []ExtensionUse {
	if len(dirs) == 0 {
		return nil
	}
	out := make([]ExtensionUse, 0, len(dirs))
	for _, d := range dirs {
		use := ExtensionUse{Name: d.Name.Value, Args: make(map[string]any, len(d.Arguments))}
		for _, arg := range d.Arguments {
			use.Args[arg.Name.Value] = literalValue(arg.Value)
		}
		out = append(out, use)
	}
	return out
}

// mergeTypeDef folds a later declaration of the same type into an earlier
// one. Redeclaring a field with a different type is an error.
func mergeTypeDef(dst, src *TypeDef) error {
	dst.Node = dst.Node || src.Node
	dst.Extensions = append(dst.Extensions, src.Extensions...)
	for _, f := range src.Fields {
		existing := dst.field(f.Name)
		if existing == nil {
			dst.Fields = append(dst.Fields, f)
			continue
		}
		if existing.Type != f.Type {
			return errdefs.NewConfig(dst.Name+"."+f.Name, "declared as %s and %s", existing.Type, f.Type)
		}
		existing.Extensions = append(existing.Extensions, f.Extensions...)
	}
	return nil
}
