package store

import (
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ohler55/ojg/jp"

	"github.com/gridsome/gridsome/internal/errdefs"
	"github.com/gridsome/gridsome/internal/refs"
)

// Query is a predicate document. Keys are field names or dotted paths;
// values are either a literal (implicit $eq) or a map of operators:
//
//	Query{"tags": Query{"$contains": "go"}, "author.name": "ada"}
//
// "$and" and "$or" take a list of sub-queries.
type Query map[string]any

type cond struct {
	field string
	path  jp.Expr // set for dotted paths
	op    string
	arg   any
	re    *regexp.Regexp
	pred  func(a, b any) bool
}

type matcher struct {
	conds []cond
	and   []*matcher
	or    []*matcher
}

func asQuery(v any) (map[string]any, bool) {
	switch q := v.(type) {
	case Query:
		return q, true
	case map[string]any:
		return q, true
	}
	return nil, false
}

func compileQuery(q Query) (*matcher, error) {
	m := &matcher{}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val := q[key]
		switch key {
		case "$and", "$or":
			subs, err := compileList(key, val)
			if err != nil {
				return nil, err
			}
			if key == "$and" {
				m.and = append(m.and, subs...)
			} else {
				m.or = append(m.or, subs...)
			}
			continue
		}
		if strings.HasPrefix(key, "$") {
			return nil, errdefs.NewValidation("find", key, "operator used as field name")
		}

		var path jp.Expr
		if strings.Contains(key, ".") {
			x, err := jp.ParseString("$." + key)
			if err != nil {
				return nil, errdefs.NewValidation("find", key, "invalid field path: %v", err)
			}
			path = x
		}

		ops, isOps := operatorMap(val)
		if !isOps {
			m.conds = append(m.conds, cond{field: key, path: path, op: "$eq", arg: val})
			continue
		}
		opNames := make([]string, 0, len(ops))
		for op := range ops {
			opNames = append(opNames, op)
		}
		sort.Strings(opNames)
		for _, op := range opNames {
			c, err := compileCond(key, path, op, ops[op])
			if err != nil {
				return nil, err
			}
			m.conds = append(m.conds, c)
		}
	}
	return m, nil
}

func compileList(key string, val any) ([]*matcher, error) {
	items, ok := asList(val)
	if !ok {
		return nil, errdefs.NewValidation("find", key, "expects a list of queries")
	}
	out := make([]*matcher, 0, len(items))
	for _, item := range items {
		sub, ok := asQuery(item)
		if !ok {
			return nil, errdefs.NewValidation("find", key, "expects a list of queries")
		}
		m, err := compileQuery(sub)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// operatorMap reports whether v is a non-empty map whose keys are all
// operators.
func operatorMap(v any) (map[string]any, bool) {
	m, ok := asQuery(v)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func compileCond(field string, path jp.Expr, op string, arg any) (cond, error) {
	c := cond{field: field, path: path, op: op, arg: arg}
	switch op {
	case "$eq", "$ne", "$exists", "$gt", "$gte", "$lt", "$lte", "$contains":
	case "$in", "$nin", "$containsAny", "$containsNone":
		if _, ok := asList(arg); !ok {
			return c, errdefs.NewValidation("find", field, "%s expects a list", op)
		}
	case "$size":
		if _, ok := toFloat(arg); !ok {
			return c, errdefs.NewValidation("find", field, "$size expects a number")
		}
	case "$regex":
		switch re := arg.(type) {
		case *regexp.Regexp:
			c.re = re
		case string:
			compiled, err := regexp.Compile(re)
			if err != nil {
				return c, errdefs.NewValidation("find", field, "invalid $regex: %v", err)
			}
			c.re = compiled
		default:
			return c, errdefs.NewValidation("find", field, "$regex expects a string")
		}
	default:
		pred, ok := refs.Operator(op)
		if !ok {
			return c, errdefs.NewValidation("find", field, "unknown operator %s", op)
		}
		c.pred = pred
	}
	return c, nil
}

func (m *matcher) match(n *Node) bool {
	for i := range m.conds {
		if !m.conds[i].eval(n) {
			return false
		}
	}
	for _, sub := range m.and {
		if !sub.match(n) {
			return false
		}
	}
	if len(m.or) == 0 {
		return true
	}
	for _, sub := range m.or {
		if sub.match(n) {
			return true
		}
	}
	return false
}

// fieldCond builds a value accessor for a field name or dotted path. An
// unparsable path falls back to a plain field lookup.
func fieldCond(field string) cond {
	c := cond{field: field}
	if strings.Contains(field, ".") {
		if x, err := jp.ParseString("$." + field); err == nil {
			c.path = x
		}
	}
	return c
}

func (c *cond) value(n *Node) (any, bool) {
	if c.path == nil {
		v, ok := n.Get(c.field)
		return v, ok && v != nil
	}
	res := c.path.Get(n.Doc())
	switch len(res) {
	case 0:
		return nil, false
	case 1:
		return res[0], res[0] != nil
	}
	return res, true
}

func (c *cond) eval(n *Node) bool {
	a, defined := c.value(n)
	switch c.op {
	case "$eq":
		return looseEqual(a, c.arg)
	case "$ne":
		return !looseEqual(a, c.arg)
	case "$in":
		return anyIn(a, c.arg)
	case "$nin":
		return !anyIn(a, c.arg)
	case "$exists":
		want, ok := c.arg.(bool)
		return defined == (!ok || want)
	case "$gt", "$gte", "$lt", "$lte":
		cmp, ok := compareValues(a, c.arg)
		if !ok {
			return false
		}
		switch c.op {
		case "$gt":
			return cmp > 0
		case "$gte":
			return cmp >= 0
		case "$lt":
			return cmp < 0
		}
		return cmp <= 0
	case "$regex":
		s, ok := a.(string)
		return ok && c.re.MatchString(s)
	case "$size":
		items, ok := asList(a)
		want, _ := toFloat(c.arg)
		return ok && float64(len(items)) == want
	case "$contains":
		return contains(a, c.arg)
	case "$containsAny", "$containsNone":
		wanted, _ := asList(c.arg)
		hit := false
		for _, w := range wanted {
			if contains(a, w) {
				hit = true
				break
			}
		}
		return hit == (c.op == "$containsAny")
	}
	return c.pred(a, c.arg)
}

func contains(a, b any) bool {
	if s, ok := a.(string); ok {
		sub, ok := b.(string)
		return ok && strings.Contains(s, sub)
	}
	items, ok := asList(a)
	if !ok {
		return false
	}
	for _, item := range items {
		if scalarEqual(item, b) {
			return true
		}
	}
	return false
}

func anyIn(a, b any) bool {
	set, _ := asList(b)
	if items, ok := asList(a); ok {
		for _, item := range items {
			for _, want := range set {
				if scalarEqual(item, want) {
					return true
				}
			}
		}
		return false
	}
	for _, want := range set {
		if scalarEqual(a, want) {
			return true
		}
	}
	return false
}

// looseEqual matches list values when any element equals a scalar operand.
func looseEqual(a, b any) bool {
	itemsA, listA := asList(a)
	itemsB, listB := asList(b)
	switch {
	case listA && listB:
		if len(itemsA) != len(itemsB) {
			return false
		}
		for i := range itemsA {
			if !scalarEqual(itemsA[i], itemsB[i]) {
				return false
			}
		}
		return true
	case listA:
		for _, item := range itemsA {
			if scalarEqual(item, b) {
				return true
			}
		}
		return false
	}
	return scalarEqual(a, b)
}

func scalarEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := toTime(b)
		return ok && ta.Equal(tb)
	}
	switch a.(type) {
	case refs.Reference, *refs.Reference:
		return refs.Eq(a, b)
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		return ok && sa == sb
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders numbers, times and strings. ok is false when the
// operands are not comparable.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := toTime(b)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	if sa, ok := a.(string); ok {
		if tb, ok := b.(time.Time); ok {
			ta, ok := toTime(sa)
			if !ok {
				return 0, false
			}
			return ta.Compare(tb), true
		}
		sb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// asList converts any slice into []any. Strings and byte slices are not
// lists.
func asList(v any) ([]any, bool) {
	if items, ok := refs.List(v); ok {
		return items, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
