// Package store holds typed collections of content nodes.
//
// Every mutation serializes on a single lock and is applied atomically.
// Change events are queued under that lock and delivered in mutation order
// after it is released, so handlers may read from or write to the store.
package store

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/gridsome/gridsome/internal/errdefs"
	"github.com/gridsome/gridsome/internal/hooks"
	"github.com/gridsome/gridsome/internal/refs"
)

var ErrNotFound = errors.New("node not found")

// ChangeKind tags a change event.
type ChangeKind int

const (
	ChangeAdd ChangeKind = iota
	ChangeUpdate
	ChangeRemove
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdd:
		return "add"
	case ChangeUpdate:
		return "update"
	default:
		return "remove"
	}
}

// Change describes one node mutation. Node is the new snapshot, or the last
// known one for removals. Old is only set for updates.
type Change struct {
	Kind     ChangeKind
	TypeName string
	Node     *Node
	Old      *Node
}

type Store struct {
	mu          sync.RWMutex
	log         *logrus.Entry
	collections map[string]*Collection
	order       []string

	// Primary maps, always current.
	byUID   map[string]*Node
	byPath  map[string]*Node
	bySeq   map[uint32]*Node
	uidSeq  map[string]uint32
	nextSeq uint32

	// Secondary indices, rebuilt on EnableIndices.
	index      *indexSet
	indexHolds int

	metadata map[string]any
	version  atomic.Uint64
	resolver *refs.Resolver[*Node]

	changes     *hooks.List[Change]
	emitMu      sync.Mutex
	pending     []Change
	dispatching bool
}

// New creates an empty store. A nil log uses the standard logger.
func New(log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Store{
		log:         log.WithField("component", "store"),
		collections: make(map[string]*Collection),
		byUID:       make(map[string]*Node),
		byPath:      make(map[string]*Node),
		bySeq:       make(map[uint32]*Node),
		uidSeq:      make(map[string]uint32),
		index:       newIndexSet(),
		metadata:    make(map[string]any),
		changes:     hooks.New[Change]("change"),
	}
	s.resolver = refs.NewResolver(s.Lookup, log)
	return s
}

// OnChange is the ordered handler list for node changes.
func (s *Store) OnChange() *hooks.List[Change] { return s.changes }

// Resolver resolves reference values against this store.
func (s *Store) Resolver() *refs.Resolver[*Node] { return s.resolver }

// Version is bumped by every mutation.
func (s *Store) Version() uint64 { return s.version.Load() }

// CollectionOptions configures a collection.
type CollectionOptions struct {
	Route       string            // path template, e.g. "/blog/:year/:slug"
	Refs        map[string]string // field → target typeName
	IndexFields []string          // fields with a value index
	Fields      map[string]string // explicit field declarations: field → GraphQL type
}

// AddCollection creates the collection or returns the existing one with the
// options merged in. Re-adding with a different route is a ConfigError.
func (s *Store) AddCollection(typeName string, opts CollectionOptions) (*Collection, error) {
	if typeName == "" {
		return nil, errdefs.NewValidation("addCollection", "typeName", "is required")
	}
	s.mu.Lock()
	c, err := s.addCollectionLocked(typeName, opts)
	s.mu.Unlock()
	s.dispatch()
	return c, err
}

func (s *Store) addCollectionLocked(typeName string, opts CollectionOptions) (*Collection, error) {
	c, ok := s.collections[typeName]
	if !ok {
		c = &Collection{
			store:    s,
			typeName: typeName,
			refs:     make(map[string]string),
			fields:   make(map[string]string),
			byID:     make(map[string]*Node),
		}
		s.collections[typeName] = c
		s.order = append(s.order, typeName)
		s.version.Add(1)
	}

	if opts.Route != "" && c.route != "" && NormalizePath(opts.Route) != c.route {
		return nil, errdefs.NewConfig(typeName, "route %q conflicts with existing route %q", opts.Route, c.route)
	}

	reindex := false
	for field, target := range opts.Refs {
		if c.refs[field] != target {
			c.refs[field] = target
			reindex = true
			if _, known := s.collections[target]; !known && target != "" {
				_, _ = s.addCollectionLocked(target, CollectionOptions{})
			}
		}
	}
	for _, field := range opts.IndexFields {
		if !c.hasIndexField(field) {
			c.indexFields = append(c.indexFields, field)
			reindex = true
		}
	}
	maps.Copy(c.fields, opts.Fields)
	if len(opts.Fields) > 0 {
		s.version.Add(1)
	}

	if opts.Route != "" && c.route == "" {
		if err := c.setRouteLocked(NormalizePath(opts.Route)); err != nil {
			return nil, err
		}
	}
	if reindex && s.indexHolds == 0 {
		s.rebuildIndexLocked()
		s.version.Add(1)
	}
	return c, nil
}

// Collection returns an existing collection.
func (s *Store) Collection(typeName string) (*Collection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[typeName]
	return c, ok
}

// Collections returns every collection in creation order.
func (s *Store) Collections() []*Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Collection, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.collections[name])
	}
	return out
}

// GetNode looks a node up by type and id.
func (s *Store) GetNode(typeName, id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[typeName]; ok {
		if n, ok := c.byID[id]; ok {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%s:%s: %w", typeName, id, ErrNotFound)
}

// GetNodeByUID looks a node up by its store-wide uid.
func (s *Store) GetNodeByUID(uid string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.byUID[uid]; ok {
		return n, nil
	}
	return nil, fmt.Errorf("uid %s: %w", uid, ErrNotFound)
}

// GetNodeByPath looks a node up by its resolved path.
func (s *Store) GetNodeByPath(path string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.byPath[NormalizePath(path)]; ok {
		return n, nil
	}
	return nil, fmt.Errorf("path %s: %w", path, ErrNotFound)
}

// Lookup finds a node of typeName whose key equals value. It backs
// reference resolution.
func (s *Store) Lookup(typeName, key, value string) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[typeName]
	if !ok {
		return nil, false
	}
	switch key {
	case "", "id":
		n, ok := c.byID[value]
		return n, ok
	case "path":
		n, ok := s.byPath[NormalizePath(value)]
		return n, ok && n.TypeName == typeName
	}
	for _, n := range c.nodesLocked() {
		if v, ok := n.Get(key); ok {
			if sv, ok := indexKey(v); ok && sv == value {
				return n, true
			}
		}
	}
	return nil, false
}

// CreateReference returns a marker pointing at typeName:id. The target
// collection is created if it does not exist yet.
func (s *Store) CreateReference(typeName, id string) refs.Reference {
	s.mu.Lock()
	if _, ok := s.collections[typeName]; !ok {
		_, _ = s.addCollectionLocked(typeName, CollectionOptions{})
	}
	s.mu.Unlock()
	return refs.New(typeName, id)
}

// BelongsTo returns the nodes referencing uid, in insertion order.
func (s *Store) BelongsTo(uid string) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.indexHolds == 0 {
		bm, ok := s.index.belongsTo[uid]
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
	var out []*Node
	for _, seq := range s.sortedSeqs() {
		n := s.bySeq[seq]
		for _, target := range outgoingRefs(s.collections[n.TypeName], n) {
			if target == uid {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// AddMetadata stores a site-wide value. Maps are merged deeply into any
// existing map under the same key.
func (s *Store) AddMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = deepMerge(s.metadata[key], value)
	s.version.Add(1)
}

// Metadata returns a copy of the site-wide metadata.
func (s *Store) Metadata() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepMerge(nil, s.metadata).(map[string]any)
}

func deepMerge(dst, src any) any {
	srcMap, ok := src.(map[string]any)
	if !ok {
		return src
	}
	dstMap, ok := dst.(map[string]any)
	out := make(map[string]any, len(srcMap))
	if ok {
		for k, v := range dstMap {
			out[k] = v
		}
	}
	for k, v := range srcMap {
		out[k] = deepMerge(out[k], v)
	}
	return out
}

func nodeUID(typeName, id string) string {
	return MakeUID(typeName + "-" + id)
}

// emit queues a change. Must be called with s.mu held.
func (s *Store) emit(ch Change) {
	s.version.Add(1)
	s.emitMu.Lock()
	s.pending = append(s.pending, ch)
	s.emitMu.Unlock()
}

// dispatch delivers queued changes. Only one goroutine delivers at a time;
// changes queued by handlers are delivered after the current one.
func (s *Store) dispatch() {
	s.emitMu.Lock()
	if s.dispatching {
		s.emitMu.Unlock()
		return
	}
	s.dispatching = true
	for len(s.pending) > 0 {
		ch := s.pending[0]
		s.pending = s.pending[1:]
		s.emitMu.Unlock()
		if err := s.changes.Call(ch); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"change": ch.Kind.String(),
				"node":   ch.Node.label(),
			}).Warn("change handler failed")
		}
		s.emitMu.Lock()
	}
	s.dispatching = false
	s.emitMu.Unlock()
}
