// Package pages maintains the set of logical pages and keeps it consistent
// with page components on disk and with content in the store.
package pages

import (
	"errors"
	"maps"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/sirupsen/logrus"

	"github.com/gridsome/gridsome/internal/errdefs"
	"github.com/gridsome/gridsome/internal/hooks"
	"github.com/gridsome/gridsome/internal/store"
)

var ErrNotFound = errors.New("page not found")

// Kind tells how a page was created.
type Kind int

const (
	// KindStatic pages come from page components or explicit CreatePage calls.
	KindStatic Kind = iota
	// KindTemplate pages are owned by a node of a route-less template collection.
	KindTemplate
)

func (k Kind) String() string {
	if k == KindTemplate {
		return "template"
	}
	return "static"
}

// State is the lifecycle position of a page.
type State int

const (
	StateCreated State = iota
	StateActive
	StateUpdated
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateUpdated:
		return "updated"
	}
	return "removed"
}

// RouteMeta is what a page component declares about its data needs.
type RouteMeta struct {
	Query    string // GraphQL page query, empty when the component has none
	Paginate bool   // the query has a @paginate field
}

// PageOptions describe a page to create or update.
type PageOptions struct {
	Path      string
	Component string
	Context   map[string]any // query variables
	Owner     string         // uid of the owning node for template pages
	Kind      Kind
}

// Page is a registered page. Pages are snapshots and are replaced, never
// modified, by updates.
type Page struct {
	Path      string
	Component string
	Context   map[string]any
	Owner     string
	Kind      Kind
	State     State

	seq uint32
}

// Dynamic reports whether the path holds route parameters, as in /user/:id.
func (p *Page) Dynamic() bool {
	return strings.Contains(p.Path, ":")
}

// DynamicRoute binds a parametrized route to a node collection. One output
// path per node is computed when the render queue is built.
type DynamicRoute struct {
	TypeName  string
	Route     string
	Component string
}

// ChangeKind tags a page change event.
type ChangeKind int

const (
	ChangeCreate ChangeKind = iota
	ChangeUpdate
	ChangeRemove
)

// Change is delivered through Registry.OnChange. Old is set for updates.
type Change struct {
	Kind ChangeKind
	Page *Page
	Old  *Page
}

// Registry is the authoritative page set.
type Registry struct {
	mu  sync.RWMutex
	log *logrus.Entry

	byPath  map[string]*Page
	bySeq   map[uint32]*Page
	nextSeq uint32
	meta    map[string]RouteMeta
	dynamic []DynamicRoute

	// Secondary indices, rebuilt on EnableIndices.
	byComponent map[string]*roaring.Bitmap
	byOwner     map[string]*roaring.Bitmap
	indexHolds  int

	changes *hooks.List[Change]
}

// NewRegistry returns an empty registry. A nil log uses the standard logger.
func NewRegistry(log *logrus.Entry) *Registry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		log:         log.WithField("component", "pages"),
		byPath:      make(map[string]*Page),
		bySeq:       make(map[uint32]*Page),
		meta:        make(map[string]RouteMeta),
		byComponent: make(map[string]*roaring.Bitmap),
		byOwner:     make(map[string]*roaring.Bitmap),
		changes:     hooks.New[Change]("pages"),
	}
}

// OnChange is the ordered handler list for page changes. Handlers run after
// the registry lock is released.
func (r *Registry) OnChange() *hooks.List[Change] { return r.changes }

// validate checks opts and normalizes its path in place.
func validate(label string, opts *PageOptions) error {
	if opts.Path == "" {
		return errdefs.NewValidation(label, "path", "is required")
	}
	if !strings.HasPrefix(opts.Path, "/") {
		return errdefs.NewValidation(label, "path", "must be absolute, got %q", opts.Path)
	}
	if opts.Component == "" {
		return errdefs.NewValidation(label, "component", "is required")
	}
	opts.Path = store.NormalizePath(opts.Path)
	for _, seg := range strings.Split(opts.Path, "/") {
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			decoded = seg
		}
		if decoded == "." || decoded == ".." || strings.ContainsAny(decoded, `/\`) {
			return errdefs.NewValidation(label, "path", "segment %q of %q is not a file name", seg, opts.Path)
		}
	}
	return nil
}

// CreatePage registers a new page. A page already registered at the same
// path is a collision naming both components.
func (r *Registry) CreatePage(opts PageOptions) (*Page, error) {
	if err := validate("createPage", &opts); err != nil {
		return nil, err
	}
	r.mu.Lock()
	if existing, ok := r.byPath[opts.Path]; ok {
		r.mu.Unlock()
		return nil, &errdefs.ValidationError{
			Label: "createPage",
			Field: "path",
			Err: &errdefs.PathCollisionError{
				Path:        opts.Path,
				Existing:    existing.Component,
				Conflicting: opts.Component,
			},
		}
	}
	p := r.insertLocked(opts)
	r.mu.Unlock()
	r.emit(Change{Kind: ChangeCreate, Page: p})
	return p, nil
}

// UpdateRoute records meta for the component and creates or replaces the
// page at opts.Path.
func (r *Registry) UpdateRoute(opts PageOptions, meta RouteMeta) (*Page, error) {
	if err := validate("updateRoute", &opts); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.meta[opts.Component] = meta
	old, ok := r.byPath[opts.Path]
	if !ok {
		p := r.insertLocked(opts)
		r.mu.Unlock()
		r.emit(Change{Kind: ChangeCreate, Page: p})
		return p, nil
	}
	p := newPage(opts, old.seq)
	p.State = StateUpdated
	r.unindexLocked(old)
	r.byPath[p.Path] = p
	r.bySeq[p.seq] = p
	r.indexLocked(p)
	r.mu.Unlock()
	r.emit(Change{Kind: ChangeUpdate, Page: p, Old: old})
	return p, nil
}

// Meta returns what the component declared, or the zero value.
func (r *Registry) Meta(component string) RouteMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.meta[component]
}

// SetMeta records component meta without touching pages.
func (r *Registry) SetMeta(component string, meta RouteMeta) {
	r.mu.Lock()
	r.meta[component] = meta
	r.mu.Unlock()
}

func newPage(opts PageOptions, seq uint32) *Page {
	return &Page{
		Path:      opts.Path,
		Component: opts.Component,
		Context:   maps.Clone(opts.Context),
		Owner:     opts.Owner,
		Kind:      opts.Kind,
		seq:       seq,
	}
}

func (r *Registry) insertLocked(opts PageOptions) *Page {
	r.nextSeq++
	p := newPage(opts, r.nextSeq)
	r.byPath[p.Path] = p
	r.bySeq[p.seq] = p
	r.indexLocked(p)
	return p
}

// RemovePageByPath removes one page.
func (r *Registry) RemovePageByPath(path string) error {
	path = store.NormalizePath(path)
	r.mu.Lock()
	p, ok := r.byPath[path]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	removed := r.removeLocked(p)
	r.mu.Unlock()
	r.emit(Change{Kind: ChangeRemove, Page: removed})
	return nil
}

// RemovePagesByComponent removes every page rendered by component and
// forgets its meta. It returns the number of pages removed.
func (r *Registry) RemovePagesByComponent(component string) int {
	r.mu.Lock()
	delete(r.meta, component)
	removed := r.removeMatchingLocked(r.byComponent[component], func(p *Page) bool {
		return p.Component == component
	})
	r.mu.Unlock()
	for _, p := range removed {
		r.emit(Change{Kind: ChangeRemove, Page: p})
	}
	return len(removed)
}

// RemovePagesByOwner removes every page owned by the node with uid.
func (r *Registry) RemovePagesByOwner(uid string) int {
	r.mu.Lock()
	removed := r.removeMatchingLocked(r.byOwner[uid], func(p *Page) bool {
		return p.Owner == uid
	})
	r.mu.Unlock()
	for _, p := range removed {
		r.emit(Change{Kind: ChangeRemove, Page: p})
	}
	return len(removed)
}

// removeMatchingLocked uses the bitmap when indices are live and scans the
// primary map otherwise.
func (r *Registry) removeMatchingLocked(bm *roaring.Bitmap, match func(*Page) bool) []*Page {
	var victims []*Page
	if r.indexHolds == 0 {
		if bm == nil {
			return nil
		}
		for _, seq := range bm.ToArray() {
			victims = append(victims, r.bySeq[seq])
		}
	} else {
		for _, seq := range r.sortedSeqs() {
			if p := r.bySeq[seq]; match(p) {
				victims = append(victims, p)
			}
		}
	}
	out := make([]*Page, len(victims))
	for i, p := range victims {
		out[i] = r.removeLocked(p)
	}
	return out
}

func (r *Registry) removeLocked(p *Page) *Page {
	r.unindexLocked(p)
	delete(r.byPath, p.Path)
	delete(r.bySeq, p.seq)
	gone := *p
	gone.State = StateRemoved
	return &gone
}

// FindPage returns the page registered at path.
func (r *Registry) FindPage(path string) (*Page, bool) {
	path = store.NormalizePath(path)
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byPath[path]
	return p, ok
}

// Pages returns every page in creation order.
func (r *Registry) Pages() []*Page {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seqs := r.sortedSeqs()
	out := make([]*Page, len(seqs))
	for i, seq := range seqs {
		out[i] = r.bySeq[seq]
	}
	return out
}

// Activate moves created and updated pages to the active state, typically
// once a render queue has been built from them.
func (r *Registry) Activate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for seq, p := range r.bySeq {
		if p.State == StateActive {
			continue
		}
		cp := *p
		cp.State = StateActive
		r.bySeq[seq] = &cp
		r.byPath[cp.Path] = &cp
	}
}

// AddDynamicRoute registers a route bound to a collection. Registering the
// same collection and route twice is a no-op.
func (r *Registry) AddDynamicRoute(route DynamicRoute) error {
	if route.TypeName == "" {
		return errdefs.NewValidation("addDynamicRoute", "typeName", "is required")
	}
	if route.Component == "" {
		return errdefs.NewValidation("addDynamicRoute", "component", "is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.dynamic {
		if existing.TypeName == route.TypeName {
			r.dynamic[i] = route
			return nil
		}
	}
	r.dynamic = append(r.dynamic, route)
	return nil
}

// DynamicRoutes returns the registered dynamic routes in registration order.
func (r *Registry) DynamicRoutes() []DynamicRoute {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]DynamicRoute(nil), r.dynamic...)
}

// DisableIndices suspends component and owner index maintenance. Calls nest.
func (r *Registry) DisableIndices() {
	r.mu.Lock()
	r.indexHolds++
	r.mu.Unlock()
}

// EnableIndices rebuilds the component and owner indices in one step.
func (r *Registry) EnableIndices() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexHolds == 0 {
		return
	}
	r.indexHolds--
	if r.indexHolds > 0 {
		return
	}
	r.byComponent = make(map[string]*roaring.Bitmap)
	r.byOwner = make(map[string]*roaring.Bitmap)
	for _, p := range r.bySeq {
		r.indexLocked(p)
	}
	r.log.WithField("pages", len(r.bySeq)).Debug("page indices rebuilt")
}

func (r *Registry) indexLocked(p *Page) {
	if r.indexHolds > 0 {
		return
	}
	addBit(r.byComponent, p.Component, p.seq)
	if p.Owner != "" {
		addBit(r.byOwner, p.Owner, p.seq)
	}
}

func (r *Registry) unindexLocked(p *Page) {
	if r.indexHolds > 0 {
		return
	}
	clearBit(r.byComponent, p.Component, p.seq)
	if p.Owner != "" {
		clearBit(r.byOwner, p.Owner, p.seq)
	}
}

func addBit(m map[string]*roaring.Bitmap, key string, seq uint32) {
	bm, ok := m[key]
	if !ok {
		bm = roaring.New()
		m[key] = bm
	}
	bm.Add(seq)
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

func (r *Registry) sortedSeqs() []uint32 {
	seqs := make([]uint32, 0, len(r.bySeq))
	for seq := range r.bySeq {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}

func (r *Registry) emit(ch Change) {
	if err := r.changes.Call(ch); err != nil {
		r.log.WithError(err).WithField("path", ch.Page.Path).Warn("page change handler failed")
	}
}
