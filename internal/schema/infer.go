package schema

import (
	"math"
	"reflect"
	"regexp"
	"slices"
	"sort"
	"time"

	"github.com/gridsome/gridsome/internal/refs"
	"github.com/gridsome/gridsome/internal/store"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindInt
	kindFloat
	kindBool
	kindDate
	kindObject
	kindRef
	kindJSON
)

// fieldInfo is the inferred shape of one field across all observed values.
type fieldInfo struct {
	kind     fieldKind
	list     bool
	refTypes []string              // kindRef: sorted target typeNames
	children map[string]*fieldInfo // kindObject
}

var dateLike = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+-]\d{2}:?\d{2})?)?$`)

var nameRe = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

// inferValue returns nil for values that carry no shape (nil, empty lists).
func inferValue(v any) *fieldInfo {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if dateLike.MatchString(val) {
			return &fieldInfo{kind: kindDate}
		}
		return &fieldInfo{kind: kindString}
	case bool:
		return &fieldInfo{kind: kindBool}
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32:
		if f, ok := toFloat(val); ok && f >= math.MinInt32 && f <= math.MaxInt32 {
			return &fieldInfo{kind: kindInt}
		}
		return &fieldInfo{kind: kindFloat}
	case uint64, float32, float64:
		f, _ := toFloat(val)
		if f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32 {
			return &fieldInfo{kind: kindInt}
		}
		return &fieldInfo{kind: kindFloat}
	case time.Time, *time.Time:
		return &fieldInfo{kind: kindDate}
	case refs.Reference:
		return &fieldInfo{kind: kindRef, refTypes: []string{val.TypeName}}
	case *refs.Reference:
		if val == nil {
			return nil
		}
		return &fieldInfo{kind: kindRef, refTypes: []string{val.TypeName}}
	case map[string]any:
		if len(val) == 0 {
			return nil
		}
		info := &fieldInfo{kind: kindObject, children: make(map[string]*fieldInfo, len(val))}
		for k, child := range val {
			if c := inferValue(child); c != nil {
				info.children[k] = c
			}
		}
		if len(info.children) == 0 {
			return nil
		}
		return info
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return &fieldInfo{kind: kindJSON}
	}
	var elem *fieldInfo
	for i := 0; i < rv.Len(); i++ {
		item := inferValue(rv.Index(i).Interface())
		if item == nil {
			continue
		}
		if item.list {
			return &fieldInfo{kind: kindJSON}
		}
		elem = mergeInfo(elem, item)
	}
	if elem == nil {
		return nil
	}
	out := *elem
	out.list = true
	return &out
}

// mergeInfo combines two observations of a field. Int and Float widen to
// Float; any other disagreement falls back to JSON.
func mergeInfo(a, b *fieldInfo) *fieldInfo {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	if a.list != b.list {
		return &fieldInfo{kind: kindJSON}
	}
	if a.kind != b.kind {
		if (a.kind == kindInt && b.kind == kindFloat) || (a.kind == kindFloat && b.kind == kindInt) {
			return &fieldInfo{kind: kindFloat, list: a.list}
		}
		if (a.kind == kindDate && b.kind == kindString) || (a.kind == kindString && b.kind == kindDate) {
			return &fieldInfo{kind: kindString, list: a.list}
		}
		return &fieldInfo{kind: kindJSON, list: a.list}
	}
	out := &fieldInfo{kind: a.kind, list: a.list}
	switch a.kind {
	case kindRef:
		out.refTypes = slices.Compact(slices.Sorted(slices.Values(append(slices.Clone(a.refTypes), b.refTypes...))))
	case kindObject:
		out.children = make(map[string]*fieldInfo, len(a.children)+len(b.children))
		for k, v := range a.children {
			out.children[k] = v
		}
		for k, v := range b.children {
			out.children[k] = mergeInfo(out.children[k], v)
		}
	}
	return out
}

// inferFields infers the custom fields of a collection from its nodes.
// Declared reference fields are typed by their target regardless of the
// stored value, which may be a plain id.
func inferFields(nodes []*store.Node, declaredRefs map[string]string) map[string]*fieldInfo {
	out := make(map[string]*fieldInfo)
	for _, n := range nodes {
		for k, v := range n.Fields {
			if target, ok := declaredRefs[k]; ok {
				_, list := refs.List(v)
				out[k] = mergeInfo(out[k], &fieldInfo{kind: kindRef, list: list, refTypes: []string{target}})
				continue
			}
			out[k] = mergeInfo(out[k], inferValue(v))
		}
	}
	for k, target := range declaredRefs {
		if _, seen := out[k]; !seen {
			out[k] = &fieldInfo{kind: kindRef, refTypes: []string{target}}
		}
	}
	for k, v := range out {
		if v == nil || !nameRe.MatchString(k) {
			delete(out, k)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
