package schema

import (
	"strconv"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// DateType serializes times as RFC 3339 and passes date strings through.
var DateType = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "Date",
	Description: "An RFC 3339 date or date-time.",
	Serialize: func(value any) any {
		switch v := value.(type) {
		case time.Time:
			if v.IsZero() {
				return nil
			}
			return v.UTC().Format(time.RFC3339)
		case *time.Time:
			if v == nil || v.IsZero() {
				return nil
			}
			return v.UTC().Format(time.RFC3339)
		case string:
			return v
		}
		return nil
	},
	ParseValue: func(value any) any {
		if s, ok := value.(string); ok {
			return s
		}
		return nil
	},
	ParseLiteral: func(valueAST ast.Value) any {
		if s, ok := valueAST.(*ast.StringValue); ok {
			return s.Value
		}
		return nil
	},
})

// JSONType carries arbitrary values whose shape could not be inferred.
var JSONType = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "Arbitrary JSON value.",
	Serialize:   func(value any) any { return jsonValue(value) },
	ParseValue:  func(value any) any { return value },
	ParseLiteral: func(valueAST ast.Value) any {
		return literalValue(valueAST)
	},
})

func literalValue(v ast.Value) any {
	switch val := v.(type) {
	case *ast.StringValue:
		return val.Value
	case *ast.BooleanValue:
		return val.Value
	case *ast.IntValue:
		if i, err := strconv.Atoi(val.Value); err == nil {
			return i
		}
	case *ast.FloatValue:
		if f, err := strconv.ParseFloat(val.Value, 64); err == nil {
			return f
		}
	case *ast.EnumValue:
		return val.Value
	case *ast.ListValue:
		out := make([]any, len(val.Values))
		for i, item := range val.Values {
			out[i] = literalValue(item)
		}
		return out
	case *ast.ObjectValue:
		out := make(map[string]any, len(val.Fields))
		for _, f := range val.Fields {
			out[f.Name.Value] = literalValue(f.Value)
		}
		return out
	}
	return nil
}

// jsonValue makes typed values JSON-friendly.
func jsonValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = jsonValue(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = jsonValue(child)
		}
		return out
	}
	return v
}

var sortOrderType = graphql.NewEnum(graphql.EnumConfig{
	Name: "SortOrder",
	Values: graphql.EnumValueConfigMap{
		"ASC":  &graphql.EnumValueConfig{Value: "ASC"},
		"DESC": &graphql.EnumValueConfig{Value: "DESC"},
	},
})

var sortArgumentType = graphql.NewInputObject(graphql.InputObjectConfig{
	Name: "SortArgument",
	Fields: graphql.InputObjectConfigFieldMap{
		"by":    &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
		"order": &graphql.InputObjectFieldConfig{Type: sortOrderType, DefaultValue: "DESC"},
	},
})

var pageInfoType = graphql.NewObject(graphql.ObjectConfig{
	Name: "PageInfo",
	Fields: graphql.Fields{
		"totalPages":      &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		"totalItems":      &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		"perPage":         &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		"currentPage":     &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		"isFirst":         &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
		"isLast":          &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
		"hasPreviousPage": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
		"hasNextPage":     &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
	},
})
