// Package manifest writes the artifacts the downstream bundler and render
// workers read: routes.json, config.json and the queue database.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/gridsome/gridsome/api"
	"github.com/gridsome/gridsome/internal/queue"
)

const (
	RoutesFile  = "routes.json"
	ConfigFile  = "config.json"
	QueueDBFile = "queue.db"
)

// Route is one routes.json record.
type Route struct {
	Path       string         `json:"path"`
	Route      string         `json:"route,omitempty"` // set when it differs from Path
	Component  string         `json:"component"`
	Kind       string         `json:"kind"`
	Page       int            `json:"page,omitempty"`
	HTMLOutput string         `json:"htmlOutput"`
	DataOutput string         `json:"dataOutput,omitempty"`
	Variables  map[string]any `json:"variables,omitempty"`
}

// Routes converts render queue entries, keeping their order.
func Routes(entries []queue.Entry) []Route {
	out := make([]Route, len(entries))
	for i, e := range entries {
		r := Route{
			Path:       e.Path,
			Component:  e.Component,
			Kind:       e.Kind.String(),
			Page:       e.Page,
			HTMLOutput: filepath.ToSlash(e.HTMLOutput),
			DataOutput: filepath.ToSlash(e.DataOutput),
			Variables:  e.Variables,
		}
		if e.Route != e.Path {
			r.Route = e.Route
		}
		out[i] = r
	}
	return out
}

// MarshalRoutes renders the routes.json document.
func MarshalRoutes(entries []queue.Entry) ([]byte, error) {
	return marshal(Routes(entries))
}

// WriteRoutes atomically replaces dir/routes.json.
func WriteRoutes(dir string, entries []queue.Entry) error {
	b, err := MarshalRoutes(entries)
	if err != nil {
		return fmt.Errorf("marshal routes: %w", err)
	}
	return writeFile(dir, RoutesFile, b)
}

// siteConfig is the config.json document: the subset of the project
// configuration the bundler needs.
type siteConfig struct {
	SiteName   string            `json:"siteName,omitempty"`
	SiteURL    string            `json:"siteUrl,omitempty"`
	PathPrefix string            `json:"pathPrefix,omitempty"`
	OutputDir  string            `json:"outputDir"`
	DataDir    string            `json:"dataDir,omitempty"`
	Templates  map[string]string `json:"templates,omitempty"` // typeName -> component
}

// WriteConfig atomically replaces dir/config.json.
func WriteConfig(dir string, cfg *api.Config) error {
	sc := siteConfig{
		SiteName:   cfg.SiteName,
		SiteURL:    cfg.SiteURL,
		PathPrefix: cfg.PathPrefix,
		OutputDir:  filepath.ToSlash(cfg.OutputDir),
		DataDir:    filepath.ToSlash(cfg.DataDir),
	}
	if len(cfg.Templates) > 0 {
		sc.Templates = make(map[string]string, len(cfg.Templates))
		for _, t := range cfg.Templates {
			sc.Templates[t.TypeName] = t.Component
		}
	}
	b, err := marshal(sc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(dir, ConfigFile, b)
}

// WriteData writes each entry's query result to its DataOutput, resolved
// against root. Entries without a data output or data are skipped.
func WriteData(root string, entries []queue.Entry) (int, error) {
	var n int
	for _, e := range entries {
		if e.DataOutput == "" || e.Data == nil {
			continue
		}
		b, err := json.Marshal(map[string]any{"data": e.Data})
		if err != nil {
			return n, fmt.Errorf("marshal %s: %w", e.Path, err)
		}
		out := e.DataOutput
		if !filepath.IsAbs(out) {
			out = filepath.Join(root, out)
		}
		if err := writeFile(filepath.Dir(out), filepath.Base(out), b); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func marshal(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func writeFile(dir, name string, b []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := atomic.WriteFile(path, bytes.NewReader(b)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
