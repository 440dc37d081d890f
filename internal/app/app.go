// Package app wires the store, schema, page registry, plugins and render
// queue of one project together and drives the bootstrap lifecycle.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/sirupsen/logrus"

	"github.com/gridsome/gridsome/api"
	"github.com/gridsome/gridsome/internal/hooks"
	"github.com/gridsome/gridsome/internal/manifest"
	"github.com/gridsome/gridsome/internal/pages"
	"github.com/gridsome/gridsome/internal/plugins"
	"github.com/gridsome/gridsome/internal/plugins/filesystem"
	"github.com/gridsome/gridsome/internal/queue"
	"github.com/gridsome/gridsome/internal/refs"
	"github.com/gridsome/gridsome/internal/schema"
	"github.com/gridsome/gridsome/internal/store"
)

// Hooks are the lifecycle events, called in this order by Bootstrap.
type Hooks struct {
	LoadSource   *hooks.List[*App]
	CreateSchema *hooks.List[*App]
	CreatePages  *hooks.List[*App]
	Bootstrapped *hooks.List[*App]
}

// Options configure an App.
type Options struct {
	// Dir is the project root on disk. Manifests and data files are written
	// below it and watches are rooted at it.
	Dir string
	// Plugins resolves configured plugin names. Nil registers the built-in
	// filesystem plugins only.
	Plugins *plugins.Registry
	// Interval is the coalescing window of watch-driven updates.
	Interval time.Duration
	Log      *logrus.Entry
}

// App is one project's engine.
type App struct {
	Config    *api.Config
	Store     *store.Store
	Schema    *schema.Synthesizer
	Pages     *pages.Registry
	Files     *pages.FilePages
	Templates *pages.Templates
	Plugins   *plugins.Set
	Hooks     Hooks

	fs       billy.Filesystem
	dir      string
	interval time.Duration
	log      *logrus.Entry
}

// New builds an app over fsys, the project root, and instantiates the
// configured plugins.
func New(fsys billy.Filesystem, cfg *api.Config, opts Options) (*App, error) {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	reg := opts.Plugins
	if reg == nil {
		reg = plugins.NewRegistry()
		if err := filesystem.Register(reg, fsys, log); err != nil {
			return nil, err
		}
	}
	set, err := reg.Instantiate(cfg.Plugins)
	if err != nil {
		return nil, err
	}

	st := store.New(log)
	pageReg := pages.NewRegistry(log)
	a := &App{
		Config:    cfg,
		Store:     st,
		Schema:    schema.New(st, log),
		Pages:     pageReg,
		Files:     pages.NewFilePages(fsys, cfg.PagesDir, pageReg, log),
		Templates: pages.NewTemplates(st, pageReg, fsys, opts.Interval, log),
		Plugins:   set,
		Hooks: Hooks{
			LoadSource:   hooks.New[*App]("loadSource"),
			CreateSchema: hooks.New[*App]("createSchema"),
			CreatePages:  hooks.New[*App]("createPages"),
			Bootstrapped: hooks.New[*App]("bootstrapped"),
		},
		fs:       fsys,
		dir:      opts.Dir,
		interval: opts.Interval,
		log:      log.WithField("component", "app"),
	}
	return a, nil
}

// Close stops background template maintenance.
func (a *App) Close() { a.Templates.Close() }

// Bootstrap loads sources, binds templates, builds the schema and creates
// pages. Any error aborts it.
func (a *App) Bootstrap(ctx context.Context) error {
	start := time.Now()
	a.addSiteMetadata()

	if err := a.Plugins.LoadSources(ctx, sourceAPI{a}); err != nil {
		return err
	}
	if err := a.Hooks.LoadSource.CallAsync(ctx, a); err != nil {
		return err
	}

	for _, t := range a.Config.Templates {
		tpl := pages.Template{TypeName: t.TypeName, Route: t.Route, Component: t.Component}
		if err := a.Templates.Add(ctx, tpl); err != nil {
			return fmt.Errorf("template %s: %w", t.TypeName, err)
		}
	}

	if err := a.Hooks.CreateSchema.CallAsync(ctx, a); err != nil {
		return err
	}
	if err := a.Schema.Build(); err != nil {
		return err
	}

	if err := a.Files.Discover(ctx); err != nil {
		return fmt.Errorf("discover pages: %w", err)
	}
	if err := a.Plugins.CreatePages(ctx, pagesAPI{a}); err != nil {
		return err
	}
	if err := a.Hooks.CreatePages.CallAsync(ctx, a); err != nil {
		return err
	}
	a.Templates.Flush()

	if err := a.Hooks.Bootstrapped.CallAsync(ctx, a); err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{
		"collections": len(a.Store.Collections()),
		"pages":       len(a.Pages.Pages()),
		"elapsed":     time.Since(start).Round(time.Millisecond),
	}).Info("bootstrapped")
	return nil
}

func (a *App) addSiteMetadata() {
	cfg := a.Config
	for key, v := range map[string]string{
		"siteName":   cfg.SiteName,
		"siteUrl":    cfg.SiteURL,
		"pathPrefix": cfg.PathPrefix,
	} {
		if v != "" {
			a.Store.AddMetadata(key, v)
		}
	}
	for key, v := range cfg.Metadata {
		a.Store.AddMetadata(key, v)
	}
}

// RenderQueue builds the render queue from the current pages and nodes.
func (a *App) RenderQueue(ctx context.Context) ([]queue.Entry, error) {
	b := queue.NewBuilder(a.Store, a.Pages, a.Schema, queue.Options{
		OutputDir:   a.Config.OutputDir,
		DataDir:     a.Config.DataDir,
		Concurrency: a.Config.Concurrency,
	}, a.log)
	return b.Build(ctx)
}

// Build bootstraps, builds the render queue and writes the manifests, the
// queue database and the page data files.
func (a *App) Build(ctx context.Context) ([]queue.Entry, error) {
	if err := a.Bootstrap(ctx); err != nil {
		return nil, err
	}
	entries, err := a.RenderQueue(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.WriteManifests(ctx, entries); err != nil {
		return nil, err
	}
	n, err := manifest.WriteData(a.dir, entries)
	if err != nil {
		return nil, err
	}
	a.Pages.Activate()
	a.log.WithFields(logrus.Fields{"entries": len(entries), "dataFiles": n}).Info("build complete")
	return entries, nil
}

// WriteManifests writes routes.json, config.json and queue.db to the temp
// directory.
func (a *App) WriteManifests(ctx context.Context, entries []queue.Entry) error {
	tmp := a.path(a.Config.TmpDir)
	if err := manifest.WriteRoutes(tmp, entries); err != nil {
		return err
	}
	if err := manifest.WriteConfig(tmp, a.Config); err != nil {
		return err
	}
	return manifest.WriteQueueDB(ctx, filepath.Join(tmp, manifest.QueueDBFile), entries)
}

// Develop bootstraps and then follows page component and content changes
// until ctx is done, rewriting the manifests whenever either changes.
func (a *App) Develop(ctx context.Context) error {
	if err := a.Bootstrap(ctx); err != nil {
		return err
	}
	regenerate := func() {
		entries, err := a.RenderQueue(ctx)
		if err == nil {
			err = a.WriteManifests(ctx, entries)
		}
		if err != nil {
			a.log.WithError(err).Warn("regenerating routes failed")
			return
		}
		a.Pages.Activate()
		a.log.WithField("entries", len(entries)).Info("routes regenerated")
	}
	regenerate()

	_, stop := a.followChanges(regenerate)
	defer stop()

	return a.Files.Watch(ctx, a.path("."), a.interval)
}

// followChanges calls fn at most once per interval after page or store
// changes. Store changes matter even when no page entry changes: dynamic
// routes expand from collection nodes and queries read content.
func (a *App) followChanges(fn func()) (*pages.Coalescer[string], func()) {
	co := pages.NewCoalescer(a.interval, func([]pages.Pending[string]) { fn() })
	untapPages := a.Pages.OnChange().Tap("develop", func(pages.Change) error {
		co.Push("routes", pages.OpUpdate)
		return nil
	})
	untapStore := a.Store.OnChange().Tap("develop", func(store.Change) error {
		co.Push("routes", pages.OpUpdate)
		return nil
	})
	return co, func() {
		untapPages()
		untapStore()
		co.Close()
	}
}

func (a *App) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	if a.dir == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(a.dir, p)
}

type sourceAPI struct{ a *App }

func (s sourceAPI) AddCollection(typeName string, opts store.CollectionOptions) (*store.Collection, error) {
	return s.a.Store.AddCollection(typeName, opts)
}

func (s sourceAPI) GetCollection(typeName string) (*store.Collection, bool) {
	return s.a.Store.Collection(typeName)
}

func (s sourceAPI) CreateReference(typeName, id string) refs.Reference {
	return s.a.Store.CreateReference(typeName, id)
}

func (s sourceAPI) AddMetadata(key string, value any) { s.a.Store.AddMetadata(key, value) }

func (s sourceAPI) AddSchemaTypes(sdl string) error { return s.a.Schema.AddSchemaTypes(sdl) }

func (s sourceAPI) Transform(ctx context.Context, mimeType string, src []byte) (store.NodeInput, bool, error) {
	t, ok := s.a.Plugins.Transformer(mimeType)
	if !ok {
		return store.NodeInput{}, false, nil
	}
	in, err := t.Parse(ctx, src)
	return in, true, err
}

type pagesAPI struct{ a *App }

func (p pagesAPI) CreatePage(opts pages.PageOptions) (*pages.Page, error) {
	return p.a.Pages.CreatePage(opts)
}

func (p pagesAPI) UpdateRoute(opts pages.PageOptions, meta pages.RouteMeta) (*pages.Page, error) {
	return p.a.Pages.UpdateRoute(opts, meta)
}

func (p pagesAPI) RemovePageByPath(path string) error { return p.a.Pages.RemovePageByPath(path) }

func (p pagesAPI) RemovePagesByComponent(component string) int {
	return p.a.Pages.RemovePagesByComponent(component)
}

func (p pagesAPI) FindPage(path string) (*pages.Page, bool) { return p.a.Pages.FindPage(path) }

func (p pagesAPI) GraphQL(ctx context.Context, query string, variables map[string]any) *schema.Result {
	return p.a.Schema.GraphQL(ctx, query, variables)
}
