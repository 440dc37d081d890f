package store

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/gridsome/gridsome/internal/errdefs"
)

// Collection is a named group of same-typed nodes.
type Collection struct {
	store       *Store
	typeName    string
	route       string
	refs        map[string]string
	indexFields []string
	fields      map[string]string
	byID        map[string]*Node
}

func (c *Collection) TypeName() string { return c.typeName }

// Route returns the normalized path template, or "" for route-less
// collections.
func (c *Collection) Route() string {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return c.route
}

// Refs returns the declared reference fields: field → target typeName.
func (c *Collection) Refs() map[string]string {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return maps.Clone(c.refs)
}

// Fields returns the explicit field declarations.
func (c *Collection) Fields() map[string]string {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return maps.Clone(c.fields)
}

// Len returns the number of nodes.
func (c *Collection) Len() int {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return len(c.byID)
}

func (c *Collection) hasIndexField(field string) bool {
	return slices.Contains(c.indexFields, field)
}

// SetRoute replaces the route template and recomputes every node path. On
// failure nothing changes.
func (c *Collection) SetRoute(route string) error {
	s := c.store
	s.mu.Lock()
	err := c.setRouteLocked(NormalizePath(route))
	s.mu.Unlock()
	s.dispatch()
	return err
}

// AddReference declares field as a reference to typeName nodes, so plain
// ids stored in it resolve to those nodes. typeName is created if unknown.
func (c *Collection) AddReference(field, typeName string) error {
	if field == "" || typeName == "" {
		return errdefs.NewValidation("addReference", "field", "field and typeName are required")
	}
	s := c.store
	s.mu.Lock()
	_, err := s.addCollectionLocked(c.typeName, CollectionOptions{Refs: map[string]string{field: typeName}})
	s.mu.Unlock()
	s.dispatch()
	return err
}

func (c *Collection) setRouteLocked(route string) error {
	s := c.store
	nodes := c.sortedNodes()
	next := make([]*Node, len(nodes))
	claimed := make(map[string]*Node, len(nodes))
	for i, old := range nodes {
		n := *old
		n.Path = ""
		if route != "" {
			p, err := ResolveRoute(route, &n, c.refs)
			if err != nil {
				return err
			}
			n.Path = p
		}
		if n.Path != "" {
			if other, dup := claimed[n.Path]; dup {
				return collision("setRoute", n.Path, other, &n)
			}
			if owner, ok := s.byPath[n.Path]; ok && owner.TypeName != c.typeName {
				return collision("setRoute", n.Path, owner, &n)
			}
			claimed[n.Path] = &n
		}
		next[i] = &n
	}

	c.route = route
	s.version.Add(1)
	for i, old := range nodes {
		n := next[i]
		if n.Path == old.Path {
			continue
		}
		s.replaceLocked(c, old, n)
		s.emit(Change{Kind: ChangeUpdate, TypeName: c.typeName, Node: n, Old: old})
	}
	return nil
}

// AddNode stores a new node. The id defaults to a hash of the input, the
// slug to the slugified title and the path to the route template.
func (c *Collection) AddNode(in NodeInput) (*Node, error) {
	s := c.store
	s.mu.Lock()
	n, err := c.addNodeLocked(in)
	s.mu.Unlock()
	s.dispatch()
	return n, err
}

func (c *Collection) addNodeLocked(in NodeInput) (*Node, error) {
	s := c.store
	if in.ID == "" {
		in.ID = contentID(in)
	}
	if _, dup := c.byID[in.ID]; dup {
		return nil, errdefs.NewValidation("addNode", "id", "duplicate id %q in %s", in.ID, c.typeName)
	}

	n := in.node(c.typeName)
	n.UID = nodeUID(c.typeName, n.ID)
	if err := c.prepare(n); err != nil {
		return nil, err
	}
	if err := c.checkPath("addNode", n, nil); err != nil {
		return nil, err
	}

	seq, ok := s.uidSeq[n.UID]
	if !ok {
		seq = s.nextSeq
		s.nextSeq++
		s.uidSeq[n.UID] = seq
	}
	n.seq = seq

	c.byID[n.ID] = n
	s.byUID[n.UID] = n
	s.bySeq[seq] = n
	if n.Path != "" {
		s.byPath[n.Path] = n
	}
	if s.indexHolds == 0 {
		s.index.add(c, n)
	}
	s.emit(Change{Kind: ChangeAdd, TypeName: c.typeName, Node: n})
	return n, nil
}

// UpdateNode replaces the fields of an existing node. The id is required
// and preserved; the path is recomputed.
func (c *Collection) UpdateNode(in NodeInput) (*Node, error) {
	if in.ID == "" {
		return nil, errdefs.NewValidation("updateNode", "id", "is required")
	}
	s := c.store
	s.mu.Lock()
	n, err := c.updateNodeLocked(in)
	s.mu.Unlock()
	s.dispatch()
	return n, err
}

func (c *Collection) updateNodeLocked(in NodeInput) (*Node, error) {
	old, ok := c.byID[in.ID]
	if !ok {
		return nil, fmt.Errorf("update %s:%s: %w", c.typeName, in.ID, ErrNotFound)
	}
	n := in.node(c.typeName)
	n.UID = old.UID
	n.seq = old.seq
	if err := c.prepare(n); err != nil {
		return nil, err
	}
	if err := c.checkPath("updateNode", n, old); err != nil {
		return nil, err
	}
	c.store.replaceLocked(c, old, n)
	c.store.emit(Change{Kind: ChangeUpdate, TypeName: c.typeName, Node: n, Old: old})
	return n, nil
}

// replaceLocked swaps old for n in every map and index.
func (s *Store) replaceLocked(c *Collection, old, n *Node) {
	if s.indexHolds == 0 {
		s.index.remove(c, old)
	}
	if old.Path != "" && s.byPath[old.Path] == old {
		delete(s.byPath, old.Path)
	}
	c.byID[n.ID] = n
	s.byUID[n.UID] = n
	s.bySeq[n.seq] = n
	if n.Path != "" {
		s.byPath[n.Path] = n
	}
	if s.indexHolds == 0 {
		s.index.add(c, n)
	}
}

// RemoveNode deletes a node and emits its last snapshot.
func (c *Collection) RemoveNode(id string) error {
	s := c.store
	s.mu.Lock()
	err := c.removeNodeLocked(id)
	s.mu.Unlock()
	s.dispatch()
	return err
}

// RemoveNodes deletes every node matching q and returns how many were
// removed.
func (c *Collection) RemoveNodes(q Query) (int, error) {
	m, err := compileQuery(q)
	if err != nil {
		return 0, err
	}
	s := c.store
	s.mu.Lock()
	var matched []string
	for _, n := range c.nodesLocked() {
		if m.match(n) {
			matched = append(matched, n.ID)
		}
	}
	for _, id := range matched {
		if err = c.removeNodeLocked(id); err != nil {
			break
		}
	}
	s.mu.Unlock()
	s.dispatch()
	return len(matched), err
}

func (c *Collection) removeNodeLocked(id string) error {
	s := c.store
	n, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("remove %s:%s: %w", c.typeName, id, ErrNotFound)
	}
	if s.indexHolds == 0 {
		s.index.remove(c, n)
	}
	delete(c.byID, id)
	delete(s.byUID, n.UID)
	delete(s.bySeq, n.seq)
	delete(s.uidSeq, n.UID)
	if n.Path != "" && s.byPath[n.Path] == n {
		delete(s.byPath, n.Path)
	}
	s.emit(Change{Kind: ChangeRemove, TypeName: c.typeName, Node: n})
	return nil
}

// prepare fills in derived attributes.
func (c *Collection) prepare(n *Node) error {
	if n.Slug == "" && n.Title != "" {
		n.Slug = Slugify(n.Title)
	}
	if c.route != "" {
		p, err := ResolveRoute(c.route, n, c.refs)
		if err != nil {
			return err
		}
		n.Path = p
		return nil
	}
	n.Path = NormalizePath(n.Path)
	return nil
}

// checkPath rejects a path owned by any node other than self.
func (c *Collection) checkPath(label string, n, self *Node) error {
	if n.Path == "" {
		return nil
	}
	owner, ok := c.store.byPath[n.Path]
	if !ok || owner == self {
		return nil
	}
	return collision(label, n.Path, owner, n)
}

func collision(label, path string, existing, conflicting *Node) error {
	return &errdefs.ValidationError{
		Label: label,
		Field: "path",
		Err: &errdefs.PathCollisionError{
			Path:        path,
			Existing:    existing.label(),
			Conflicting: conflicting.label(),
		},
	}
}

// GetNode returns the node with id.
func (c *Collection) GetNode(id string) (*Node, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	if n, ok := c.byID[id]; ok {
		return n, nil
	}
	return nil, fmt.Errorf("%s:%s: %w", c.typeName, id, ErrNotFound)
}

// Nodes returns every node in insertion order.
func (c *Collection) Nodes() []*Node {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return c.nodesLocked()
}

// FindNodes returns the nodes matching q in insertion order.
func (c *Collection) FindNodes(q Query) ([]*Node, error) {
	m, err := compileQuery(q)
	if err != nil {
		return nil, err
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	var out []*Node
	for _, n := range c.candidatesLocked(m) {
		if m.match(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// FindNode returns the first node matching q.
func (c *Collection) FindNode(q Query) (*Node, error) {
	m, err := compileQuery(q)
	if err != nil {
		return nil, err
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	for _, n := range c.candidatesLocked(m) {
		if m.match(n) {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", c.typeName, ErrNotFound)
}

// nodesLocked lists nodes in insertion order, from the member index when it
// is live and from the primary map otherwise.
func (c *Collection) nodesLocked() []*Node {
	s := c.store
	if s.indexHolds == 0 {
		bm, ok := s.index.members[c.typeName]
		if !ok {
			return nil
		}
		out := make([]*Node, 0, bm.GetCardinality())
		it := bm.Iterator()
		for it.HasNext() {
			out = append(out, s.bySeq[it.Next()])
		}
		return out
	}
	return c.sortedNodes()
}

func (c *Collection) sortedNodes() []*Node {
	out := make([]*Node, 0, len(c.byID))
	for _, n := range c.byID {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// candidatesLocked narrows the scan with a value index when q has a plain
// equality on an indexed field.
func (c *Collection) candidatesLocked(m *matcher) []*Node {
	s := c.store
	if s.indexHolds > 0 {
		return c.sortedNodes()
	}
	for _, cond := range m.conds {
		if cond.op != "$eq" || cond.field == "date" || !c.hasIndexField(cond.field) {
			continue
		}
		if _, isTime := cond.arg.(time.Time); isTime {
			continue
		}
		key, ok := indexKey(cond.arg)
		if !ok {
			continue
		}
		bm, ok := s.index.fields[c.typeName][cond.field][key]
		if !ok {
			return nil
		}
		out := make([]*Node, 0, bm.GetCardinality())
		it := bm.Iterator()
		for it.HasNext() {
			out = append(out, s.bySeq[it.Next()])
		}
		return out
	}
	return c.nodesLocked()
}
