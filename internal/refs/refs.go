// Package refs implements reference markers between nodes and the predicate
// set used to filter on them.
//
// References are resolved lazily: a stored marker is only turned into a node
// at read time, so the target may be added after, or removed before, the node
// that points at it. Predicates never fail on dangling or malformed values;
// they simply do not match.
package refs

import (
	"strconv"
	"strings"
)

// Reference is a typed pointer to another node.
type Reference struct {
	TypeName string `json:"typeName"`
	ID       string `json:"id"`
}

// New creates a reference marker.
func New(typeName, id string) Reference {
	return Reference{TypeName: typeName, ID: id}
}

// Identifiable is implemented by values that carry their own id, such as
// stored nodes.
type Identifiable interface {
	RefID() string
}

// ID extracts the id a value points at. It accepts references, maps with an
// "id" key, identifiable values, strings and numbers. Empty ids are undefined.
func ID(v any) (string, bool) {
	var id string
	switch val := v.(type) {
	case nil:
		return "", false
	case Reference:
		id = val.ID
	case *Reference:
		if val == nil {
			return "", false
		}
		id = val.ID
	case Identifiable:
		id = val.RefID()
	case map[string]any:
		raw, ok := val["id"]
		if !ok {
			return "", false
		}
		return ID(raw)
	case string:
		id = val
	case int:
		id = strconv.Itoa(val)
	case int64:
		id = strconv.FormatInt(val, 10)
	case float64:
		id = strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return "", false
	}
	if id == "" {
		return "", false
	}
	return id, true
}

// IsMarker reports whether v is a reference marker or a list of them.
func IsMarker(v any) bool {
	switch val := v.(type) {
	case Reference, *Reference:
		return true
	case []Reference:
		return true
	case []any:
		for _, item := range val {
			if _, ok := item.(Reference); ok {
				return true
			}
		}
	}
	return false
}

// Collect returns the reference markers held by v, walking lists and nested
// maps. fallbackType is used for plain ids when non-empty.
func Collect(v any, fallbackType string) []Reference {
	var out []Reference
	collect(v, fallbackType, &out)
	return out
}

func collect(v any, fallbackType string, out *[]Reference) {
	switch val := v.(type) {
	case Reference:
		*out = append(*out, val)
	case *Reference:
		if val != nil {
			*out = append(*out, *val)
		}
	case []Reference:
		*out = append(*out, val...)
	case []string:
		if fallbackType != "" {
			for _, id := range val {
				if id != "" {
					*out = append(*out, New(fallbackType, id))
				}
			}
		}
	case []any:
		for _, item := range val {
			collect(item, fallbackType, out)
		}
	case map[string]any:
		if fallbackType != "" {
			if id, ok := ID(val); ok {
				*out = append(*out, New(fallbackType, id))
			}
			return
		}
		for _, child := range val {
			collect(child, "", out)
		}
	default:
		if fallbackType != "" {
			if id, ok := ID(val); ok {
				*out = append(*out, New(fallbackType, id))
			}
		}
	}
}

// List normalizes a list-shaped value into a slice of elements.
// Non-list values return ok=false.
func List(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case []Reference:
		out := make([]any, len(val))
		for i, r := range val {
			out[i] = r
		}
		return out, true
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// idSet converts a filter operand into a set of ids.
func idSet(b any) map[string]struct{} {
	set := make(map[string]struct{})
	items, ok := List(b)
	if !ok {
		if id, ok := ID(b); ok {
			set[id] = struct{}{}
		}
		return set
	}
	for _, item := range items {
		if id, ok := ID(item); ok {
			set[id] = struct{}{}
		}
	}
	return set
}

// Eq is true if a (or a.id) equals b stringwise. List values match when any
// element does.
func Eq(a, b any) bool {
	if items, ok := List(a); ok {
		return ListEq(items, b)
	}
	id, ok := ID(a)
	if !ok {
		return false
	}
	want, ok := ID(b)
	return ok && id == want
}

// Ne is the complement of Eq.
func Ne(a, b any) bool { return !Eq(a, b) }

// In is true if b is a set and any id held by a is a member.
func In(a, b any) bool {
	if items, ok := List(a); ok {
		return ListIn(items, b)
	}
	id, ok := ID(a)
	if !ok {
		return false
	}
	_, found := idSet(b)[id]
	return found
}

// Nin is the complement of In.
func Nin(a, b any) bool { return !In(a, b) }

// Exists checks whether a resolves to a defined id. exists=false requires an
// undefined one.
func Exists(a any, exists bool) bool {
	if items, ok := List(a); ok {
		return ListExists(items, exists)
	}
	_, ok := ID(a)
	return ok == exists
}

// ListEq applies Eq to each element and succeeds on the first match.
func ListEq(a, b any) bool {
	items, ok := List(a)
	if !ok {
		return Eq(a, b)
	}
	for _, item := range items {
		if Eq(item, b) {
			return true
		}
	}
	return false
}

// ListNe is the complement of ListEq.
func ListNe(a, b any) bool { return !ListEq(a, b) }

// ListIn applies In to each element and succeeds on the first match.
func ListIn(a, b any) bool {
	items, ok := List(a)
	if !ok {
		return In(a, b)
	}
	set := idSet(b)
	for _, item := range items {
		if id, ok := ID(item); ok {
			if _, found := set[id]; found {
				return true
			}
		}
	}
	return false
}

// ListNin is the complement of ListIn.
func ListNin(a, b any) bool { return !ListIn(a, b) }

// ListExists succeeds if any element satisfies the exists condition.
func ListExists(a any, exists bool) bool {
	items, ok := List(a)
	if !ok {
		return Exists(a, exists)
	}
	for _, item := range items {
		if _, ok := ID(item); ok == exists {
			return true
		}
	}
	return false
}

// Operator looks up a reference predicate by its query operator name,
// e.g. "$refIn". The bool result reports whether the name is known.
func Operator(name string) (func(a, b any) bool, bool) {
	switch strings.TrimPrefix(name, "$") {
	case "refEq":
		return Eq, true
	case "refNe":
		return Ne, true
	case "refIn":
		return In, true
	case "refNin":
		return Nin, true
	case "refExists":
		return func(a, b any) bool { return Exists(a, truthy(b)) }, true
	case "refListEq":
		return ListEq, true
	case "refListNe":
		return ListNe, true
	case "refListIn":
		return ListIn, true
	case "refListNin":
		return ListNin, true
	case "refListExists":
		return func(a, b any) bool { return ListExists(a, truthy(b)) }, true
	}
	return nil, false
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return !ok || b
}
