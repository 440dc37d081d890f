// Package queue flattens the page registry and the store into the ordered
// list of output paths the render step consumes.
package queue

import (
	"context"
	"fmt"
	"maps"
	"runtime"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gridsome/gridsome/internal/errdefs"
	"github.com/gridsome/gridsome/internal/pages"
	"github.com/gridsome/gridsome/internal/schema"
	"github.com/gridsome/gridsome/internal/store"
)

// Kind is the origin of an entry. Entries are ordered by kind, with the
// home page ahead of everything.
type Kind int

const (
	KindStatic Kind = iota
	KindPaged
	KindTemplate
	KindDynamic
)

func (k Kind) String() string {
	switch k {
	case KindPaged:
		return "paged"
	case KindTemplate:
		return "template"
	case KindDynamic:
		return "dynamic"
	}
	return "static"
}

// Entry is one output path to render.
type Entry struct {
	Path       string
	Route      string // page path or route pattern the entry came from
	Component  string
	HTMLOutput string
	DataOutput string // empty when no data directory is configured
	Kind       Kind
	Page       int // 1-based page number for paginated queries, else 0
	Variables  map[string]any
	Data       map[string]any
	Err        error // *errdefs.QueryError when the page query failed
}

// Querier runs page queries.
type Querier interface {
	GraphQL(ctx context.Context, query string, variables map[string]any) *schema.Result
}

// Options configure a build.
type Options struct {
	OutputDir   string
	DataDir     string
	Concurrency int // parallel queries; defaults to GOMAXPROCS
}

// Builder produces render queues.
type Builder struct {
	store    *store.Store
	registry *pages.Registry
	querier  Querier
	opts     Options
	log      *logrus.Entry
}

// NewBuilder returns a builder. A nil log uses the standard logger.
func NewBuilder(st *store.Store, reg *pages.Registry, q Querier, opts Options, log *logrus.Entry) *Builder {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	return &Builder{
		store:    st,
		registry: reg,
		querier:  q,
		opts:     opts,
		log:      log.WithField("component", "queue"),
	}
}

// unit is one page or node before paginated expansion.
type unit struct {
	rank      int
	owner     string // collision label
	path      string
	route     string
	component string
	kind      Kind
	meta      pages.RouteMeta
	vars      map[string]any
}

// rank puts the home page first whatever its kind. Later pages of a
// paginated home page stay with the other paged entries.
func rank(path string, kind Kind) int {
	if path == "/" {
		return 0
	}
	return int(kind) + 1
}

// Build collects every page, runs the page queries and returns the entries
// in render order. Query failures are recorded on their entry; duplicate
// output paths fail the build.
func (b *Builder) Build(ctx context.Context) ([]Entry, error) {
	units := b.units()

	// First pass: every unit's first (or only) page, which also tells how
	// many pages a paginated query has.
	first := make([]Entry, len(units))
	totals := make([]int, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)
	for i := range units {
		g.Go(func() error {
			page := 0
			if units[i].meta.Paginate {
				page = 1
			}
			first[i], totals[i] = b.run(gctx, units[i], page)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		entries []Entry
		labels  []string // collision label per entry
		rest    []int    // indices of entries still missing data
	)
	for i, u := range units {
		entries = append(entries, first[i])
		labels = append(labels, u.owner)
		for page := 2; page <= totals[i]; page++ {
			entries = append(entries, b.entry(u, page))
			labels = append(labels, u.owner)
			rest = append(rest, len(entries)-1)
		}
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)
	for _, idx := range rest {
		g.Go(func() error {
			b.execute(gctx, &entries[idx], b.registry.Meta(entries[idx].Component))
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries, labels = ordered(entries, labels)
	if err := checkCollisions(entries, labels); err != nil {
		return nil, err
	}
	b.log.WithField("entries", len(entries)).Info("render queue built")
	return entries, nil
}

// ordered sorts expanded entries by rank, keeping the relative order of
// equal ranks.
func ordered(entries []Entry, labels []string) ([]Entry, []string) {
	idx := make([]int, len(entries))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := entries[idx[i]], entries[idx[j]]
		return rank(a.Path, a.Kind) < rank(b.Path, b.Kind)
	})
	outEntries := make([]Entry, len(entries))
	outLabels := make([]string, len(labels))
	for i, k := range idx {
		outEntries[i] = entries[k]
		outLabels[i] = labels[k]
	}
	return outEntries, outLabels
}

// units lists pages and dynamic-route nodes in render order.
func (b *Builder) units() []unit {
	var out []unit
	for _, p := range b.registry.Pages() {
		meta := b.registry.Meta(p.Component)
		kind := KindStatic
		switch {
		case p.Kind == pages.KindTemplate:
			kind = KindTemplate
		case meta.Paginate:
			kind = KindPaged
		}
		owner := p.Component
		if p.Owner != "" {
			owner = p.Owner + " (" + p.Component + ")"
		}
		out = append(out, unit{
			path:      p.Path,
			route:     p.Path,
			component: p.Component,
			kind:      kind,
			meta:      meta,
			vars:      p.Context,
			owner:     owner,
		})
	}

	for _, dr := range b.registry.DynamicRoutes() {
		c, ok := b.store.Collection(dr.TypeName)
		if !ok {
			continue
		}
		meta := b.registry.Meta(dr.Component)
		for _, n := range c.Nodes() {
			if n.Path == "" {
				continue
			}
			out = append(out, unit{
				path:      n.Path,
				route:     dr.Route,
				component: dr.Component,
				kind:      KindDynamic,
				meta:      meta,
				vars:      map[string]any{"id": n.ID, "path": n.Path},
				owner:     fmt.Sprintf("%s:%s (%s)", n.TypeName, n.ID, dr.Component),
			})
		}
	}

	for i := range out {
		out[i].rank = rank(out[i].path, out[i].kind)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].rank < out[j].rank })
	return out
}

// entry builds the entry of page n (0 for unpaginated units).
func (b *Builder) entry(u unit, page int) Entry {
	p := u.path
	if page > 1 {
		p = pagePath(u.path, page)
	}
	vars := maps.Clone(u.vars)
	if page > 0 {
		if vars == nil {
			vars = make(map[string]any, 1)
		}
		vars["page"] = page
	}
	return Entry{
		Path:       p,
		Route:      u.route,
		Component:  u.component,
		HTMLOutput: HTMLOutput(b.opts.OutputDir, p),
		DataOutput: DataOutput(b.opts.DataDir, p),
		Kind:       u.kind,
		Page:       page,
		Variables:  vars,
	}
}

// run builds and executes the entry of page n, returning the query's page
// count (at least 1).
func (b *Builder) run(ctx context.Context, u unit, page int) (Entry, int) {
	e := b.entry(u, page)
	total := b.execute(ctx, &e, u.meta)
	return e, max(total, 1)
}

func (b *Builder) execute(ctx context.Context, e *Entry, meta pages.RouteMeta) int {
	if meta.Query == "" || b.querier == nil {
		return 1
	}
	res := b.querier.GraphQL(ctx, meta.Query, e.Variables)
	e.Data = res.Data
	if len(res.Errors) > 0 {
		e.Err = &errdefs.QueryError{Path: e.Path, Messages: res.Errors}
		b.log.WithError(e.Err).WithField("path", e.Path).Warn("page query failed")
		return 1
	}
	if !meta.Paginate {
		return 1
	}
	return res.TotalPages
}

func pagePath(base string, page int) string {
	if base == "/" {
		return "/" + strconv.Itoa(page)
	}
	return base + "/" + strconv.Itoa(page)
}

// checkCollisions fails on two entries writing the same HTML file. Distinct
// page paths can decode to one file ("/a b" and "/a%20b").
func checkCollisions(entries []Entry, labels []string) error {
	seen := make(map[string]string, len(entries))
	for i, e := range entries {
		if existing, dup := seen[e.HTMLOutput]; dup {
			return &errdefs.PathCollisionError{Path: e.HTMLOutput, Existing: existing, Conflicting: labels[i]}
		}
		seen[e.HTMLOutput] = labels[i]
	}
	return nil
}
