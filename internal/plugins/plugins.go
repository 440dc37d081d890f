// Package plugins defines what plugins can do and how they are configured.
//
// A plugin is anything with a name that implements at least one capability:
// Source loads nodes, Transformer turns file contents into node input, and
// PageCreator adds pages once the schema exists. Each capability receives an
// explicit API value rather than a shared application object.
package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/gridsome/gridsome/api"
	"github.com/gridsome/gridsome/internal/errdefs"
	"github.com/gridsome/gridsome/internal/pages"
	"github.com/gridsome/gridsome/internal/refs"
	"github.com/gridsome/gridsome/internal/schema"
	"github.com/gridsome/gridsome/internal/store"
)

// Plugin is the common part of every capability.
type Plugin interface {
	Name() string
}

// SourceAPI is handed to sources during the loadSource phase.
type SourceAPI interface {
	AddCollection(typeName string, opts store.CollectionOptions) (*store.Collection, error)
	GetCollection(typeName string) (*store.Collection, bool)
	CreateReference(typeName, id string) refs.Reference
	AddMetadata(key string, value any)
	AddSchemaTypes(sdl string) error
	// Transform runs the transformer registered for mimeType. ok is false
	// when there is none.
	Transform(ctx context.Context, mimeType string, src []byte) (in store.NodeInput, ok bool, err error)
}

// PagesAPI is handed to page creators during the createPages phase.
type PagesAPI interface {
	CreatePage(opts pages.PageOptions) (*pages.Page, error)
	UpdateRoute(opts pages.PageOptions, meta pages.RouteMeta) (*pages.Page, error)
	RemovePageByPath(path string) error
	RemovePagesByComponent(component string) int
	FindPage(path string) (*pages.Page, bool)
	GraphQL(ctx context.Context, query string, variables map[string]any) *schema.Result
}

// Source loads content into the store.
type Source interface {
	Plugin
	LoadSource(ctx context.Context, api SourceAPI) error
}

// Transformer parses one kind of file into node input.
type Transformer interface {
	Plugin
	MimeTypes() []string
	Parse(ctx context.Context, src []byte) (store.NodeInput, error)
}

// PageCreator adds pages programmatically.
type PageCreator interface {
	Plugin
	CreatePages(ctx context.Context, api PagesAPI) error
}

// Factory builds a plugin from its configured options.
type Factory func(options map[string]any) (Plugin, error)

// Registry maps plugin names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Names are unique.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return errdefs.NewConfig(name, "plugin name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		return errdefs.NewConfig(name, "plugin already registered")
	}
	r.factories[name] = f
	return nil
}

// Names lists the registered plugins, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Instantiate builds the configured plugins, in order, and checks their
// capabilities.
func (r *Registry) Instantiate(cfgs []api.PluginConfig) (*Set, error) {
	set := &Set{transformers: make(map[string]Transformer)}
	for _, cfg := range cfgs {
		r.mu.RLock()
		f, ok := r.factories[cfg.Use]
		r.mu.RUnlock()
		if !ok {
			return nil, errdefs.NewConfig(cfg.Use, "unknown plugin")
		}
		p, err := f(cfg.Options)
		if err != nil {
			if errdefs.IsConfig(err) {
				return nil, err
			}
			return nil, errdefs.NewConfig(cfg.Use, "%v", err)
		}
		if err := set.Add(p); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Set is an instantiated, validated plugin list.
type Set struct {
	Sources      []Source
	PageCreators []PageCreator
	transformers map[string]Transformer
}

// Add sorts p into its capabilities. A plugin without any, or a
// transformer claiming a mime type another one already handles, is a
// ConfigError.
func (s *Set) Add(p Plugin) error {
	if s.transformers == nil {
		s.transformers = make(map[string]Transformer)
	}
	var matched bool
	if src, ok := p.(Source); ok {
		s.Sources = append(s.Sources, src)
		matched = true
	}
	if t, ok := p.(Transformer); ok {
		if len(t.MimeTypes()) == 0 {
			return errdefs.NewConfig(p.Name(), "transformer handles no mime types")
		}
		for _, mt := range t.MimeTypes() {
			if prev, dup := s.transformers[mt]; dup {
				return errdefs.NewConfig(p.Name(), "mime type %s already handled by %s", mt, prev.Name())
			}
			s.transformers[mt] = t
		}
		matched = true
	}
	if pc, ok := p.(PageCreator); ok {
		s.PageCreators = append(s.PageCreators, pc)
		matched = true
	}
	if !matched {
		return errdefs.NewConfig(p.Name(), "plugin implements no capability")
	}
	return nil
}

// Transformer returns the transformer for mimeType.
func (s *Set) Transformer(mimeType string) (Transformer, bool) {
	t, ok := s.transformers[mimeType]
	return t, ok
}

// DecodeOptions copies plugin options into dst, a pointer to a struct with
// json tags. Unknown keys are a ConfigError.
func DecodeOptions(name string, options map[string]any, dst any) error {
	b, err := json.Marshal(options)
	if err != nil {
		return errdefs.NewConfig(name, "options: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errdefs.NewConfig(name, "options: %v", err)
	}
	return nil
}

// LoadSources calls each source in order.
func (s *Set) LoadSources(ctx context.Context, api SourceAPI) error {
	for _, src := range s.Sources {
		if err := src.LoadSource(ctx, api); err != nil {
			return fmt.Errorf("%s: load source: %w", src.Name(), err)
		}
	}
	return nil
}

// CreatePages calls each page creator in order.
func (s *Set) CreatePages(ctx context.Context, api PagesAPI) error {
	for _, pc := range s.PageCreators {
		if err := pc.CreatePages(ctx, api); err != nil {
			return fmt.Errorf("%s: create pages: %w", pc.Name(), err)
		}
	}
	return nil
}
