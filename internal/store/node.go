package store

import (
	"maps"
	"time"

	"github.com/gridsome/gridsome/internal/refs"
)

// Internal carries bookkeeping about where a node came from.
type Internal struct {
	Origin    string    // source file or plugin that produced the node
	MimeType  string    // e.g. "text/markdown"
	Timestamp time.Time // load time
}

// Node is a single content item. Stored nodes are snapshots: mutations
// replace them, so callers must not modify a returned node.
type Node struct {
	ID       string
	UID      string
	TypeName string
	Title    string
	Slug     string
	Date     time.Time
	Path     string
	Content  string
	Excerpt  string
	Fields   map[string]any
	Internal Internal

	seq uint32 // internal bitmap id, stable across updates
}

// RefID lets nodes be used directly as reference values.
func (n *Node) RefID() string { return n.ID }

// NodeInput is what producers hand to AddNode and UpdateNode. Path is only
// honoured for collections without a route.
type NodeInput struct {
	ID       string
	Title    string
	Slug     string
	Date     time.Time
	Path     string
	Content  string
	Excerpt  string
	Fields   map[string]any
	Internal Internal
}

// builtin field names resolved from struct fields rather than Fields.
var builtinFields = map[string]struct{}{
	"id": {}, "uid": {}, "typeName": {}, "title": {}, "slug": {}, "date": {},
	"path": {}, "content": {}, "excerpt": {},
}

// IsBuiltin reports whether name is a node attribute rather than a custom field.
func IsBuiltin(name string) bool {
	_, ok := builtinFields[name]
	return ok
}

// Get returns a top-level value by name: a builtin attribute or a custom field.
func (n *Node) Get(name string) (any, bool) {
	switch name {
	case "id":
		return n.ID, true
	case "uid":
		return n.UID, true
	case "typeName":
		return n.TypeName, true
	case "title":
		return n.Title, n.Title != ""
	case "slug":
		return n.Slug, n.Slug != ""
	case "date":
		return n.Date, !n.Date.IsZero()
	case "path":
		return n.Path, n.Path != ""
	case "content":
		return n.Content, n.Content != ""
	case "excerpt":
		return n.Excerpt, n.Excerpt != ""
	}
	v, ok := n.Fields[name]
	return v, ok
}

// Doc flattens the node into a generic document for path evaluation.
// Custom fields never shadow builtin attributes.
func (n *Node) Doc() map[string]any {
	doc := make(map[string]any, len(n.Fields)+len(builtinFields))
	for k, v := range n.Fields {
		doc[k] = docValue(v)
	}
	doc["id"] = n.ID
	doc["uid"] = n.UID
	doc["typeName"] = n.TypeName
	doc["title"] = n.Title
	doc["slug"] = n.Slug
	doc["path"] = n.Path
	doc["content"] = n.Content
	doc["excerpt"] = n.Excerpt
	if !n.Date.IsZero() {
		doc["date"] = n.Date
	}
	return doc
}

// docValue converts typed containers into the generic shapes path
// expressions can walk.
func docValue(v any) any {
	switch val := v.(type) {
	case refs.Reference:
		return map[string]any{"typeName": val.TypeName, "id": val.ID}
	case []refs.Reference:
		out := make([]any, len(val))
		for i, r := range val {
			out[i] = docValue(r)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = docValue(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = docValue(child)
		}
		return out
	}
	return v
}

func (in NodeInput) node(typeName string) *Node {
	return &Node{
		ID:       in.ID,
		TypeName: typeName,
		Title:    in.Title,
		Slug:     in.Slug,
		Date:     in.Date,
		Path:     in.Path,
		Content:  in.Content,
		Excerpt:  in.Excerpt,
		Fields:   maps.Clone(in.Fields),
		Internal: in.Internal,
	}
}

// Input converts a stored node back into an input, e.g. to update it.
func (n *Node) Input() NodeInput {
	return NodeInput{
		ID:       n.ID,
		Title:    n.Title,
		Slug:     n.Slug,
		Date:     n.Date,
		Path:     n.Path,
		Content:  n.Content,
		Excerpt:  n.Excerpt,
		Fields:   maps.Clone(n.Fields),
		Internal: n.Internal,
	}
}

func (n *Node) label() string {
	return n.TypeName + ":" + n.ID
}
