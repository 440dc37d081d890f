package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gridsome/gridsome/internal/errdefs"
)

// ExtensionLevel tells where an extension may be used.
type ExtensionLevel int

const (
	FieldLevel ExtensionLevel = iota
	TypeLevel
)

// ArgKind is the expected type of an extension argument.
type ArgKind int

const (
	ArgString ArgKind = iota
	ArgBool
	ArgInt
)

func (k ArgKind) String() string {
	switch k {
	case ArgBool:
		return "Boolean"
	case ArgInt:
		return "Int"
	}
	return "String"
}

// Extension is a named directive that adjusts a declared field or type
// before the schema is built.
type Extension struct {
	Name     string
	Level    ExtensionLevel
	Args     map[string]ArgKind
	Required []string

	ApplyField func(f *FieldDef, args map[string]any) error
	ApplyType  func(t *TypeDef, args map[string]any) error
}

// Extensions is a registry of extensions keyed by name.
type Extensions struct {
	mu   sync.RWMutex
	byID map[string]*Extension
}

// NewExtensions returns a registry holding the built-in reference, proxy
// and infer extensions.
func NewExtensions() *Extensions {
	r := &Extensions{byID: make(map[string]*Extension)}
	for _, ext := range builtinExtensions() {
		if err := r.Register(ext); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds an extension. Names must be unique.
func (r *Extensions) Register(ext Extension) error {
	if !nameRe.MatchString(ext.Name) {
		return errdefs.NewConfig(ext.Name, "invalid extension name")
	}
	if ext.Level == FieldLevel && ext.ApplyField == nil || ext.Level == TypeLevel && ext.ApplyType == nil {
		return errdefs.NewConfig(ext.Name, "extension has no apply function for its level")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byID[ext.Name]; dup {
		return errdefs.NewConfig(ext.Name, "extension is already registered")
	}
	r.byID[ext.Name] = &ext
	return nil
}

// Names lists the registered extensions.
func (r *Extensions) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byID))
	for name := range r.byID {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExtensionUse is one occurrence of an extension in a declaration.
type ExtensionUse struct {
	Name string
	Args map[string]any
}

func (r *Extensions) lookup(use ExtensionUse, level ExtensionLevel, subject string) (*Extension, error) {
	r.mu.RLock()
	ext, ok := r.byID[use.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, errdefs.NewConfig(subject, "unknown extension @%s", use.Name)
	}
	if ext.Level != level {
		where := "fields"
		if ext.Level == TypeLevel {
			where = "types"
		}
		return nil, errdefs.NewConfig(subject, "extension @%s only applies to %s", use.Name, where)
	}
	for name, val := range use.Args {
		kind, ok := ext.Args[name]
		if !ok {
			return nil, errdefs.NewConfig(subject, "@%s has no argument %q", use.Name, name)
		}
		if !argMatches(kind, val) {
			return nil, errdefs.NewConfig(subject, "@%s(%s:) expects %s, got %T", use.Name, name, kind, val)
		}
	}
	for _, name := range ext.Required {
		if _, ok := use.Args[name]; !ok {
			return nil, errdefs.NewConfig(subject, "@%s requires argument %q", use.Name, name)
		}
	}
	return ext, nil
}

func argMatches(kind ArgKind, v any) bool {
	switch kind {
	case ArgBool:
		_, ok := v.(bool)
		return ok
	case ArgInt:
		_, ok := v.(int)
		return ok
	}
	_, ok := v.(string)
	return ok
}

// applyField runs every extension used on f in declaration order.
func (r *Extensions) applyField(t *TypeDef, f *FieldDef) error {
	subject := fmt.Sprintf("%s.%s", t.Name, f.Name)
	for _, use := range f.Extensions {
		ext, err := r.lookup(use, FieldLevel, subject)
		if err != nil {
			return err
		}
		if err := ext.ApplyField(f, use.Args); err != nil {
			return errdefs.NewConfig(subject, "@%s: %v", use.Name, err)
		}
	}
	return nil
}

func (r *Extensions) applyType(t *TypeDef) error {
	for _, use := range t.Extensions {
		ext, err := r.lookup(use, TypeLevel, t.Name)
		if err != nil {
			return err
		}
		if err := ext.ApplyType(t, use.Args); err != nil {
			return errdefs.NewConfig(t.Name, "@%s: %v", use.Name, err)
		}
	}
	return nil
}

func builtinExtensions() []Extension {
	return []Extension{
		{
			Name:  "reference",
			Level: FieldLevel,
			Args:  map[string]ArgKind{"by": ArgString},
			ApplyField: func(f *FieldDef, args map[string]any) error {
				f.Reference = true
				if by, ok := args["by"].(string); ok && by != "" {
					f.RefBy = by
				}
				return nil
			},
		},
		{
			Name:     "proxy",
			Level:    FieldLevel,
			Args:     map[string]ArgKind{"from": ArgString},
			Required: []string{"from"},
			ApplyField: func(f *FieldDef, args map[string]any) error {
				from := args["from"].(string)
				if from == "" {
					return fmt.Errorf("from must not be empty")
				}
				f.Source = from
				return nil
			},
		},
		{
			Name:  "infer",
			Level: TypeLevel,
			Args:  map[string]ArgKind{"enabled": ArgBool},
			ApplyType: func(t *TypeDef, args map[string]any) error {
				enabled, ok := args["enabled"].(bool)
				t.Infer = !ok || enabled
				return nil
			},
		},
	}
}
