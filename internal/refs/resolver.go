package refs

import (
	"github.com/sirupsen/logrus"

	"github.com/gridsome/gridsome/internal/errdefs"
)

// Lookup finds a node of typeName whose key field equals value. key is "id"
// unless a custom resolution key is configured.
type Lookup[N any] func(typeName, key, value string) (N, bool)

// Resolver turns stored reference markers into nodes at read time.
type Resolver[N any] struct {
	lookup Lookup[N]
	log    *logrus.Entry
}

// NewResolver creates a resolver backed by lookup. A nil log uses the
// standard logger.
func NewResolver[N any](lookup Lookup[N], log *logrus.Entry) *Resolver[N] {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Resolver[N]{lookup: lookup, log: log.WithField("component", "refs")}
}

// One resolves a single reference. typeName is used when v is a plain id
// rather than a typed marker. by selects the key to match on ("" means id).
// A dangling reference yields ok=false.
func (r *Resolver[N]) One(v any, typeName, by string) (N, bool) {
	var zero N
	if items, ok := List(v); ok {
		if len(items) == 0 {
			return zero, false
		}
		v = items[0]
	}
	target, id, ok := r.target(v, typeName)
	if !ok {
		return zero, false
	}
	return r.find(target, by, id)
}

// Many resolves a list of references, skipping dangling ones. A single
// marker is treated as a one-element list.
func (r *Resolver[N]) Many(v any, typeName, by string) []N {
	items, ok := List(v)
	if !ok {
		if v == nil {
			return nil
		}
		items = []any{v}
	}
	out := make([]N, 0, len(items))
	for _, item := range items {
		target, id, ok := r.target(item, typeName)
		if !ok {
			continue
		}
		if n, ok := r.find(target, by, id); ok {
			out = append(out, n)
		}
	}
	return out
}

// Resolve returns []N when v is a list and N (or nil when dangling)
// otherwise.
func (r *Resolver[N]) Resolve(v any, typeName, by string) any {
	if _, ok := List(v); ok {
		return r.Many(v, typeName, by)
	}
	if n, ok := r.One(v, typeName, by); ok {
		return n
	}
	return nil
}

func (r *Resolver[N]) target(v any, typeName string) (string, string, bool) {
	switch ref := v.(type) {
	case Reference:
		if ref.TypeName != "" {
			typeName = ref.TypeName
		}
	case *Reference:
		if ref != nil && ref.TypeName != "" {
			typeName = ref.TypeName
		}
	case map[string]any:
		if tn, ok := ref["typeName"].(string); ok && tn != "" {
			typeName = tn
		}
	}
	id, ok := ID(v)
	if !ok || typeName == "" {
		return "", "", false
	}
	return typeName, id, true
}

func (r *Resolver[N]) find(typeName, by, value string) (N, bool) {
	if by == "" {
		by = "id"
	}
	n, ok := r.lookup(typeName, by, value)
	if !ok {
		r.log.WithField("by", by).Debug(errdefs.DanglingReference{TypeName: typeName, ID: value}.String())
	}
	return n, ok
}
