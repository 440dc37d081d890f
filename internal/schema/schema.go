// Package schema synthesizes a GraphQL schema over the node store and
// executes page queries against it.
//
// Types are inferred from the nodes currently stored and merged with
// explicit declarations. The built schema is cached and rebuilt whenever
// the store version or the declarations change.
package schema

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/graphql-go/graphql"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/gridsome/gridsome/internal/errdefs"
	"github.com/gridsome/gridsome/internal/store"
)

const defaultCacheSize = 256

type built struct {
	schema       *graphql.Schema
	storeVersion uint64
	declVersion  uint64
}

// Synthesizer owns the schema built over one store.
type Synthesizer struct {
	store *store.Store
	exts  *Extensions
	log   *logrus.Entry

	mu          sync.RWMutex
	decls       map[string]*TypeDef
	declVersion uint64

	buildMu sync.Mutex
	current atomic.Pointer[built]

	cache *lru.Cache[string, *prepared]
}

// New returns a synthesizer over st. A nil log uses the standard logger.
func New(st *store.Store, log *logrus.Entry) *Synthesizer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	cache, err := lru.New[string, *prepared](defaultCacheSize)
	if err != nil {
		panic(err)
	}
	return &Synthesizer{
		store: st,
		exts:  NewExtensions(),
		log:   log.WithField("component", "schema"),
		decls: make(map[string]*TypeDef),
		cache: cache,
	}
}

// Extensions returns the extension registry used by the next build.
func (syn *Synthesizer) Extensions() *Extensions { return syn.exts }

// AddSchemaTypes merges explicit object type declarations. Types that
// implement Node get a collection if they do not have one yet; fields
// pointing at other node types become collection references.
func (syn *Synthesizer) AddSchemaTypes(sdl string) error {
	defs, err := parseSDL(sdl)
	if err != nil {
		return err
	}

	syn.mu.Lock()
	staged := make(map[string]*TypeDef, len(syn.decls)+len(defs))
	for name, def := range syn.decls {
		staged[name] = def
	}
	for _, def := range defs {
		existing, ok := staged[def.Name]
		if !ok {
			staged[def.Name] = def
			continue
		}
		merged := cloneTypeDef(existing)
		if err := mergeTypeDef(merged, def); err != nil {
			syn.mu.Unlock()
			return err
		}
		staged[def.Name] = merged
	}
	syn.decls = staged
	syn.declVersion++
	syn.mu.Unlock()

	for _, def := range defs {
		if !staged[def.Name].Node {
			continue
		}
		opts := store.CollectionOptions{Refs: declaredRefs(syn.exts, staged[def.Name], staged)}
		if _, err := syn.store.AddCollection(def.Name, opts); err != nil {
			return err
		}
	}
	syn.log.WithField("types", len(defs)).Debug("added schema types")
	return nil
}

// declaredRefs maps the stored field of every node-typed field to its target
// type. Field extensions run on a copy first so @proxy(from:) names the
// stored field; extension errors are left for Build to report.
func declaredRefs(exts *Extensions, def *TypeDef, all map[string]*TypeDef) map[string]string {
	def = cloneTypeDef(def)
	out := make(map[string]string)
	for _, f := range def.Fields {
		if err := exts.applyField(def, f); err != nil {
			continue
		}
		target, ok := all[f.Type.Name]
		if !ok || !target.Node {
			continue
		}
		if f.Source != "" {
			out[f.Source] = f.Type.Name
		} else {
			out[f.Name] = f.Type.Name
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Build rebuilds the schema if the store or the declarations changed since
// the last build.
func (syn *Synthesizer) Build() error {
	_, err := syn.Schema()
	return err
}

// Schema returns the current schema, rebuilding it when stale.
func (syn *Synthesizer) Schema() (*graphql.Schema, error) {
	if s, ok := syn.fresh(); ok {
		return s, nil
	}
	syn.buildMu.Lock()
	defer syn.buildMu.Unlock()
	if s, ok := syn.fresh(); ok {
		return s, nil
	}

	version := syn.store.Version()
	syn.mu.RLock()
	declVersion := syn.declVersion
	syn.mu.RUnlock()

	s, err := syn.build()
	if err != nil {
		return nil, err
	}
	syn.current.Store(&built{schema: s, storeVersion: version, declVersion: declVersion})
	syn.log.WithField("version", version).Debug("schema rebuilt")
	return s, nil
}

func (syn *Synthesizer) fresh() (*graphql.Schema, bool) {
	cur := syn.current.Load()
	if cur == nil || cur.storeVersion != syn.store.Version() {
		return nil, false
	}
	syn.mu.RLock()
	defer syn.mu.RUnlock()
	return cur.schema, cur.declVersion == syn.declVersion
}

// GraphQL validates and executes query. Errors in the query itself are
// reported in the result; a schema that fails to build is reported as a
// result error too, with Err returning the ConfigError's message.
func (syn *Synthesizer) GraphQL(ctx context.Context, query string, variables map[string]any) *Result {
	s, err := syn.Schema()
	if err != nil {
		return errorResult(err)
	}
	p, err := syn.prepare(query)
	if err != nil {
		return errorResult(err)
	}
	return p.execute(ctx, s, variables)
}

// Result is the outcome of one query.
type Result struct {
	Data   map[string]any
	Errors []string

	// TotalPages is the page count of the @paginate field, or 0 when the
	// query has none.
	TotalPages int
}

// Err folds the result's errors into a QueryError.
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return &errdefs.QueryError{Messages: r.Errors}
}

func errorResult(err error) *Result {
	return &Result{Errors: []string{err.Error()}}
}
