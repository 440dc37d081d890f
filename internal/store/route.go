package store

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gridsome/gridsome/internal/errdefs"
	"github.com/gridsome/gridsome/internal/refs"
)

var routeParamRe = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// RouteParams returns the placeholder names of a route template in order.
func RouteParams(route string) []string {
	var out []string
	for _, m := range routeParamRe.FindAllStringSubmatch(route, -1) {
		out = append(out, m[1])
	}
	return out
}

// NormalizePath ensures a leading slash, collapses repeated slashes and
// drops a trailing slash. The empty path stays empty.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	parts := strings.Split(p, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return "/" + strings.Join(kept, "/")
}

// ResolveRoute substitutes the params of route with values taken from n.
// refFields maps declared reference fields to their target type; those
// fields resolve to the referenced id. Params suffixed with _raw are not
// slugified. Every param must have a value.
func ResolveRoute(route string, n *Node, refFields map[string]string) (string, error) {
	var missing []string
	out := routeParamRe.ReplaceAllStringFunc(route, func(m string) string {
		name := m[1:]
		key, raw := strings.CutSuffix(name, "_raw")
		val, ok := routeValue(key, n, refFields)
		if !ok {
			missing = append(missing, name)
			return m
		}
		if raw {
			return val
		}
		return Slugify(val)
	})
	if len(missing) > 0 {
		return "", errdefs.NewValidation("addNode", strings.Join(missing, ","),
			"no value for route param in %s %s", route, n.label())
	}
	return NormalizePath(out), nil
}

func routeValue(key string, n *Node, refFields map[string]string) (string, bool) {
	switch key {
	case "year", "month", "day":
		if n.Date.IsZero() {
			if v, ok := n.Fields[key]; ok {
				return scalarString(v)
			}
			return "", false
		}
		switch key {
		case "year":
			return strconv.Itoa(n.Date.Year()), true
		case "month":
			return fmt.Sprintf("%02d", int(n.Date.Month())), true
		default:
			return fmt.Sprintf("%02d", n.Date.Day()), true
		}
	}

	v, ok := n.Get(key)
	if !ok || v == nil {
		return "", false
	}
	if _, isRef := refFields[key]; isRef || refs.IsMarker(v) {
		if items, ok := refs.List(v); ok {
			if len(items) == 0 {
				return "", false
			}
			v = items[0]
		}
		return refs.ID(v)
	}
	return scalarString(v)
}

func scalarString(v any) (string, bool) {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case bool:
		s = strconv.FormatBool(val)
	case int:
		s = strconv.Itoa(val)
	case int64:
		s = strconv.FormatInt(val, 10)
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		if val.IsZero() {
			return "", false
		}
		s = val.Format("2006-01-02")
	default:
		return "", false
	}
	return s, s != ""
}
