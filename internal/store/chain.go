package store

import (
	"slices"
	"sort"
)

// SortSpec orders nodes by one field.
type SortSpec struct {
	Field string
	Desc  bool
}

// Chain is a lazily evaluated view over a collection. Builder methods
// modify the chain in place and return it; Branch forks an independent copy.
// Nothing is read from the store until Count or Data.
type Chain struct {
	coll   *Collection
	src    []*Node // fixed node set for ChainOf
	finds  []*matcher
	wheres []func(*Node) bool
	sorts  []SortSpec
	offset int
	limit  int
	err    error
}

// Chain starts a view over every node in the collection.
func (c *Collection) Chain() *Chain {
	return &Chain{coll: c}
}

// ChainOf starts a view over a fixed list of nodes, such as the result of
// BelongsTo. Index narrowing does not apply.
func ChainOf(nodes []*Node) *Chain {
	return &Chain{src: slices.Clone(nodes)}
}

// Find narrows the view to nodes matching q. A malformed query is reported
// by Count and Data.
func (ch *Chain) Find(q Query) *Chain {
	if ch.err != nil {
		return ch
	}
	m, err := compileQuery(q)
	if err != nil {
		ch.err = err
		return ch
	}
	ch.finds = append(ch.finds, m)
	return ch
}

// Where narrows the view with an arbitrary predicate.
func (ch *Chain) Where(fn func(*Node) bool) *Chain {
	ch.wheres = append(ch.wheres, fn)
	return ch
}

// Sort appends sort keys. Earlier keys take precedence.
func (ch *Chain) Sort(specs ...SortSpec) *Chain {
	ch.sorts = append(ch.sorts, specs...)
	return ch
}

func (ch *Chain) Offset(n int) *Chain {
	ch.offset = max(n, 0)
	return ch
}

// Limit caps the number of results. Zero means no limit.
func (ch *Chain) Limit(n int) *Chain {
	ch.limit = max(n, 0)
	return ch
}

// Branch returns a copy that can be refined without affecting ch.
func (ch *Chain) Branch() *Chain {
	cp := *ch
	cp.finds = slices.Clone(ch.finds)
	cp.wheres = slices.Clone(ch.wheres)
	cp.sorts = slices.Clone(ch.sorts)
	return &cp
}

// Count returns the number of matching nodes, ignoring Offset and Limit.
func (ch *Chain) Count() (int, error) {
	nodes, err := ch.filtered()
	return len(nodes), err
}

// Data evaluates the chain.
func (ch *Chain) Data() ([]*Node, error) {
	nodes, err := ch.filtered()
	if err != nil {
		return nil, err
	}
	if len(ch.sorts) > 0 {
		keys := make([]cond, len(ch.sorts))
		for i, spec := range ch.sorts {
			keys[i] = fieldCond(spec.Field)
		}
		sort.SliceStable(nodes, func(i, j int) bool {
			return lessNodes(nodes[i], nodes[j], keys, ch.sorts)
		})
	}
	if ch.offset >= len(nodes) {
		return []*Node{}, nil
	}
	nodes = nodes[ch.offset:]
	if ch.limit > 0 && ch.limit < len(nodes) {
		nodes = nodes[:ch.limit]
	}
	return nodes, nil
}

func (ch *Chain) filtered() ([]*Node, error) {
	if ch.err != nil {
		return nil, ch.err
	}
	var candidates []*Node
	switch {
	case ch.coll == nil:
		candidates = ch.src
	case len(ch.finds) > 0:
		ch.coll.store.mu.RLock()
		candidates = ch.coll.candidatesLocked(ch.finds[0])
		ch.coll.store.mu.RUnlock()
	default:
		ch.coll.store.mu.RLock()
		candidates = ch.coll.nodesLocked()
		ch.coll.store.mu.RUnlock()
	}

	out := make([]*Node, 0, len(candidates))
next:
	for _, n := range candidates {
		for _, m := range ch.finds {
			if !m.match(n) {
				continue next
			}
		}
		for _, fn := range ch.wheres {
			if !fn(n) {
				continue next
			}
		}
		out = append(out, n)
	}
	return out, nil
}

// lessNodes orders by the sort keys. Missing or incomparable values sort
// last regardless of direction.
func lessNodes(a, b *Node, keys []cond, specs []SortSpec) bool {
	for i, spec := range specs {
		va, okA := keys[i].value(a)
		vb, okB := keys[i].value(b)
		switch {
		case !okA && !okB:
			continue
		case !okA:
			return false
		case !okB:
			return true
		}
		cmp, ok := compareValues(va, vb)
		if !ok || cmp == 0 {
			continue
		}
		if spec.Desc {
			return cmp > 0
		}
		return cmp < 0
	}
	return false
}
