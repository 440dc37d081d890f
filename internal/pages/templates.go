package pages

import (
	"context"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/sirupsen/logrus"

	"github.com/gridsome/gridsome/internal/errdefs"
	"github.com/gridsome/gridsome/internal/store"
)

// Template binds a collection to the component that renders its nodes.
type Template struct {
	TypeName  string
	Route     string // optional; sets the collection route
	Component string
}

// Templates turns template bindings into pages. Routed collections get one
// dynamic route; every node of a route-less collection gets its own page,
// kept in step with store changes through a coalescer.
type Templates struct {
	store    *store.Store
	registry *Registry
	fs       billy.Filesystem // component sources, may be nil
	log      *logrus.Entry

	mu     sync.Mutex
	static map[string]Template
	co     *Coalescer[string]
	untap  func()
}

// NewTemplates returns a binder. Component sources are read from fsys when
// it is not nil.
func NewTemplates(st *store.Store, reg *Registry, fsys billy.Filesystem, interval time.Duration, log *logrus.Entry) *Templates {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	t := &Templates{
		store:    st,
		registry: reg,
		fs:       fsys,
		log:      log.WithField("component", "templates"),
		static:   make(map[string]Template),
	}
	t.co = NewCoalescer(interval, t.apply)
	return t
}

// Add binds a template.
func (t *Templates) Add(ctx context.Context, tpl Template) error {
	if tpl.TypeName == "" {
		return errdefs.NewValidation("template", "typeName", "is required")
	}
	if tpl.Component == "" {
		return errdefs.NewValidation("template", "component", "is required")
	}
	if t.fs != nil {
		src, err := util.ReadFile(t.fs, tpl.Component)
		if err != nil {
			return errdefs.NewConfig(tpl.TypeName, "template component %s: %v", tpl.Component, err)
		}
		meta, err := ParseComponent(ctx, tpl.Component, src)
		if err != nil {
			return err
		}
		t.registry.SetMeta(tpl.Component, meta)
	}

	c, err := t.store.AddCollection(tpl.TypeName, store.CollectionOptions{})
	if err != nil {
		return err
	}
	if tpl.Route != "" {
		if c.Route() != tpl.Route {
			if err := c.SetRoute(tpl.Route); err != nil {
				return err
			}
		}
		return t.registry.AddDynamicRoute(DynamicRoute{
			TypeName:  tpl.TypeName,
			Route:     tpl.Route,
			Component: tpl.Component,
		})
	}
	if c.Route() != "" {
		return t.registry.AddDynamicRoute(DynamicRoute{
			TypeName:  tpl.TypeName,
			Route:     c.Route(),
			Component: tpl.Component,
		})
	}

	t.mu.Lock()
	t.static[tpl.TypeName] = tpl
	if t.untap == nil {
		t.untap = t.store.OnChange().Tap("templates", t.onChange)
	}
	t.mu.Unlock()

	t.registry.DisableIndices()
	defer t.registry.EnableIndices()
	for _, n := range c.Nodes() {
		if err := t.sync(tpl, n); err != nil {
			return err
		}
	}
	return nil
}

func (t *Templates) onChange(ch store.Change) error {
	t.mu.Lock()
	_, ok := t.static[ch.TypeName]
	t.mu.Unlock()
	if !ok {
		return nil
	}
	switch ch.Kind {
	case store.ChangeAdd:
		t.co.Push(ch.Node.UID, OpAdd)
	case store.ChangeUpdate:
		t.co.Push(ch.Node.UID, OpUpdate)
	case store.ChangeRemove:
		t.co.Push(ch.Node.UID, OpRemove)
	}
	return nil
}

// apply drains a coalesced batch of node changes. Stale pages of every node
// in the batch go first, so paths swapped between nodes within one window
// are free by the time the new pages are created.
func (t *Templates) apply(batch []Pending[string]) {
	t.registry.DisableIndices()
	defer t.registry.EnableIndices()

	type pending struct {
		tpl  Template
		node *store.Node
	}
	var live []pending
	for _, p := range batch {
		n, err := t.store.GetNodeByUID(p.Key)
		if p.Op == OpRemove || err != nil {
			t.registry.RemovePagesByOwner(p.Key)
			continue
		}
		t.mu.Lock()
		tpl, ok := t.static[n.TypeName]
		t.mu.Unlock()
		if !ok {
			continue
		}
		if cur, ok := t.registry.FindPage(n.Path); n.Path == "" || !ok || cur.Owner != n.UID {
			t.registry.RemovePagesByOwner(n.UID)
		}
		live = append(live, pending{tpl: tpl, node: n})
	}

	for _, p := range live {
		if err := t.sync(p.tpl, p.node); err != nil {
			t.log.WithError(err).WithField("node", p.node.UID).Warn("template page update failed")
		}
	}
}

// sync makes the node's page match its current path. A changed path moves
// the page: the old entry is removed and a new one created.
func (t *Templates) sync(tpl Template, n *store.Node) error {
	if n.Path == "" {
		t.registry.RemovePagesByOwner(n.UID)
		return nil
	}
	opts := PageOptions{
		Path:      n.Path,
		Component: tpl.Component,
		Context:   map[string]any{"id": n.ID, "path": n.Path},
		Owner:     n.UID,
		Kind:      KindTemplate,
	}
	if p, ok := t.registry.FindPage(n.Path); ok && p.Owner == n.UID {
		_, err := t.registry.UpdateRoute(opts, t.registry.Meta(tpl.Component))
		return err
	}
	t.registry.RemovePagesByOwner(n.UID)
	_, err := t.registry.CreatePage(opts)
	return err
}

// Flush applies pending node changes now.
func (t *Templates) Flush() { t.co.Flush() }

// Close stops following store changes after applying what is pending.
func (t *Templates) Close() {
	t.mu.Lock()
	if t.untap != nil {
		t.untap()
		t.untap = nil
	}
	t.mu.Unlock()
	t.co.Close()
}
