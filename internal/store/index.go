package store

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/gridsome/gridsome/internal/errdefs"
	"github.com/gridsome/gridsome/internal/refs"
)

// indexSet holds the secondary indices. Bits are node seqs.
type indexSet struct {
	members   map[string]*roaring.Bitmap                       // typeName → nodes
	fields    map[string]map[string]map[string]*roaring.Bitmap // typeName → field → value → nodes
	belongsTo map[string]*roaring.Bitmap                       // target uid → referencing nodes
}

func newIndexSet() *indexSet {
	return &indexSet{
		members:   make(map[string]*roaring.Bitmap),
		fields:    make(map[string]map[string]map[string]*roaring.Bitmap),
		belongsTo: make(map[string]*roaring.Bitmap),
	}
}

func bitmapFor(m map[string]*roaring.Bitmap, key string) *roaring.Bitmap {
	bm, ok := m[key]
	if !ok {
		bm = roaring.New()
		m[key] = bm
	}
	return bm
}

func clearBit(m map[string]*roaring.Bitmap, key string, seq uint32) {
	bm, ok := m[key]
	if !ok {
		return
	}
	bm.Remove(seq)
	if bm.IsEmpty() {
		delete(m, key)
	}
}

// add registers n in every index. Must be called with s.mu held.
func (ix *indexSet) add(c *Collection, n *Node) {
	bitmapFor(ix.members, n.TypeName).Add(n.seq)

	for _, field := range c.indexFields {
		byValue, ok := ix.fields[n.TypeName][field]
		if !ok {
			if ix.fields[n.TypeName] == nil {
				ix.fields[n.TypeName] = make(map[string]map[string]*roaring.Bitmap)
			}
			byValue = make(map[string]*roaring.Bitmap)
			ix.fields[n.TypeName][field] = byValue
		}
		for _, key := range indexKeys(n, field) {
			bitmapFor(byValue, key).Add(n.seq)
		}
	}

	for _, target := range outgoingRefs(c, n) {
		bitmapFor(ix.belongsTo, target).Add(n.seq)
	}
}

// remove undoes add for the same node snapshot.
func (ix *indexSet) remove(c *Collection, n *Node) {
	clearBit(ix.members, n.TypeName, n.seq)

	for _, field := range c.indexFields {
		byValue, ok := ix.fields[n.TypeName][field]
		if !ok {
			continue
		}
		for _, key := range indexKeys(n, field) {
			clearBit(byValue, key, n.seq)
		}
	}

	for _, target := range outgoingRefs(c, n) {
		clearBit(ix.belongsTo, target, n.seq)
	}
}

// indexKeys returns the keys a node is filed under for field. List values
// are filed under each element.
func indexKeys(n *Node, field string) []string {
	v, ok := n.Get(field)
	if !ok || v == nil {
		return nil
	}
	if items, ok := refs.List(v); ok {
		keys := make([]string, 0, len(items))
		for _, item := range items {
			if k, ok := indexKey(item); ok {
				keys = append(keys, k)
			}
		}
		return keys
	}
	if k, ok := indexKey(v); ok {
		return []string{k}
	}
	return nil
}

func indexKey(v any) (string, bool) {
	if refs.IsMarker(v) {
		return refs.ID(v)
	}
	return scalarString(v)
}

// outgoingRefs lists the uids n points at, through reference markers
// anywhere in its fields and through declared reference fields.
func outgoingRefs(c *Collection, n *Node) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(r refs.Reference) {
		uid := nodeUID(r.TypeName, r.ID)
		if _, dup := seen[uid]; dup {
			return
		}
		seen[uid] = struct{}{}
		out = append(out, uid)
	}
	for field, target := range c.refs {
		for _, r := range refs.Collect(n.Fields[field], target) {
			add(r)
		}
	}
	for field, v := range n.Fields {
		if _, declared := c.refs[field]; declared {
			continue
		}
		for _, r := range refs.Collect(v, "") {
			add(r)
		}
	}
	sort.Strings(out)
	return out
}

// IndexState is a comparable snapshot of the secondary indices.
type IndexState struct {
	Members   map[string][]uint32
	Fields    map[string][]uint32 // keyed "typeName/field=value"
	BelongsTo map[string][]uint32
}

func (ix *indexSet) state() IndexState {
	st := IndexState{
		Members:   make(map[string][]uint32, len(ix.members)),
		Fields:    make(map[string][]uint32),
		BelongsTo: make(map[string][]uint32, len(ix.belongsTo)),
	}
	for k, bm := range ix.members {
		st.Members[k] = bm.ToArray()
	}
	for typeName, byField := range ix.fields {
		for field, byValue := range byField {
			for value, bm := range byValue {
				st.Fields[fmt.Sprintf("%s/%s=%s", typeName, field, value)] = bm.ToArray()
			}
		}
	}
	for k, bm := range ix.belongsTo {
		st.BelongsTo[k] = bm.ToArray()
	}
	return st
}

// DisableIndices suspends secondary index maintenance for a bulk load.
// Calls nest; indices come back with the matching EnableIndices.
func (s *Store) DisableIndices() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexHolds++
	if s.indexHolds == 1 {
		s.log.Debug("indices disabled")
	}
}

// EnableIndices rebuilds every secondary index from the primary maps and
// publishes the result in one step.
func (s *Store) EnableIndices() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexHolds == 0 {
		return
	}
	s.indexHolds--
	if s.indexHolds > 0 {
		return
	}
	s.rebuildIndexLocked()
	s.log.WithField("nodes", len(s.bySeq)).Debug("indices rebuilt")
}

// rebuildIndexLocked replaces the secondary indices with a fresh build from
// the primary maps. Must be called with s.mu held.
func (s *Store) rebuildIndexLocked() {
	ix := newIndexSet()
	for _, seq := range s.sortedSeqs() {
		n := s.bySeq[seq]
		ix.add(s.collections[n.TypeName], n)
	}
	s.index = ix
}

// IndicesEnabled reports whether secondary indices are live.
func (s *Store) IndicesEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexHolds == 0
}

// IndexState snapshots the secondary indices. It fails while they are
// disabled.
func (s *Store) IndexState() (IndexState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.indexHolds > 0 {
		return IndexState{}, errdefs.ErrIndicesDisabled
	}
	return s.index.state(), nil
}

// sortedSeqs returns live seqs in ascending (insertion) order.
func (s *Store) sortedSeqs() []uint32 {
	seqs := make([]uint32, 0, len(s.bySeq))
	for seq := range s.bySeq {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}
