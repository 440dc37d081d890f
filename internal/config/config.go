// Package config loads the project configuration from gridsome.hcl,
// gridsome.json (JSON with comments) or gridsome.yaml.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/gridsome/gridsome/api"
	"github.com/gridsome/gridsome/internal/errdefs"
)

// Candidate file names, in lookup order.
const (
	HCLFile  = "gridsome.hcl"
	JSONFile = "gridsome.json"
	YAMLFile = "gridsome.yaml"
)

var files = []string{HCLFile, JSONFile, YAMLFile, "gridsome.yml"}

// Defaults.
const (
	DefaultOutputDir = "dist"
	DefaultPagesDir  = "src/pages"
	DefaultTmpDir    = ".temp"
)

// Load reads the first configuration file found at the root of fsys and
// returns it with defaults applied. A project without one gets the
// defaults. The second result is the file name used, if any.
func Load(fsys billy.Filesystem) (*api.Config, string, error) {
	for _, name := range files {
		src, err := util.ReadFile(fsys, name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("read %s: %w", name, err)
		}
		cfg, err := Parse(name, src)
		return cfg, name, err
	}
	cfg := &api.Config{}
	applyDefaults(cfg)
	return cfg, "", nil
}

// Parse decodes src according to the extension of name, applies defaults
// and validates the result.
func Parse(name string, src []byte) (*api.Config, error) {
	var (
		cfg *api.Config
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".hcl":
		cfg, err = parseHCL(name, src)
	case ".json", ".jsonc":
		cfg, err = parseJSON(src)
	case ".yaml", ".yml":
		cfg, err = parseYAML(src)
	default:
		return nil, errdefs.NewConfig(name, "unsupported config format %q", ext)
	}
	if err != nil {
		if errdefs.IsConfig(err) {
			return nil, err
		}
		return nil, errdefs.NewConfig(name, "%v", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseJSON(src []byte) (*api.Config, error) {
	std, err := hujson.Standardize(src)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONC: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(std))
	dec.DisallowUnknownFields()
	var cfg api.Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return &cfg, nil
}

func parseYAML(src []byte) (*api.Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	var cfg api.Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *api.Config) {
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	if cfg.PagesDir == "" {
		cfg.PagesDir = DefaultPagesDir
	}
	if cfg.TmpDir == "" {
		cfg.TmpDir = DefaultTmpDir
	}
	for i := range cfg.Templates {
		t := &cfg.Templates[i]
		if t.Component == "" && t.TypeName != "" {
			t.Component = filepath.ToSlash(filepath.Join("src", "templates", t.TypeName+".vue"))
		}
	}
}

// Validate reports the first invalid setting as a ConfigError.
func Validate(cfg *api.Config) error {
	if cfg.Concurrency < 0 {
		return errdefs.NewConfig("concurrency", "must not be negative")
	}
	for key, dir := range map[string]string{"outputDir": cfg.OutputDir, "tmpDir": cfg.TmpDir} {
		if filepath.Clean(dir) == "." {
			return errdefs.NewConfig(key, "must not be the project root")
		}
	}
	seen := make(map[string]bool, len(cfg.Templates))
	for i, t := range cfg.Templates {
		if t.TypeName == "" {
			return errdefs.NewConfig(fmt.Sprintf("templates[%d]", i), "typeName is required")
		}
		if seen[t.TypeName] {
			return errdefs.NewConfig(t.TypeName, "duplicate template")
		}
		seen[t.TypeName] = true
		if t.Route != "" && !strings.HasPrefix(t.Route, "/") {
			return errdefs.NewConfig(t.TypeName, "route %q must start with /", t.Route)
		}
	}
	for i, p := range cfg.Plugins {
		if p.Use == "" {
			return errdefs.NewConfig(fmt.Sprintf("plugins[%d]", i), "use is required")
		}
	}
	return nil
}
