package config

import (
	"encoding/json"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/gridsome/gridsome/api"
	"github.com/gridsome/gridsome/internal/errdefs"
)

// hclConfig is the HCL shape of api.Config:
//
//	site_name = "My blog"
//	metadata  = { author = "Ann" }
//
//	template "Post" {
//	  route = "/blog/:year/:slug"
//	}
//
//	plugin "source-filesystem" {
//	  options = { path = "content/posts", type_name = "Post" }
//	}
type hclConfig struct {
	SiteName    string        `hcl:"site_name,optional"`
	SiteURL     string        `hcl:"site_url,optional"`
	PathPrefix  string        `hcl:"path_prefix,optional"`
	OutputDir   string        `hcl:"output_dir,optional"`
	DataDir     string        `hcl:"data_dir,optional"`
	PagesDir    string        `hcl:"pages_dir,optional"`
	TmpDir      string        `hcl:"tmp_dir,optional"`
	Concurrency int           `hcl:"concurrency,optional"`
	Metadata    cty.Value     `hcl:"metadata,optional"`
	Templates   []hclTemplate `hcl:"template,block"`
	Plugins     []hclPlugin   `hcl:"plugin,block"`
}

type hclTemplate struct {
	TypeName  string `hcl:"type_name,label"`
	Route     string `hcl:"route,optional"`
	Component string `hcl:"component,optional"`
}

type hclPlugin struct {
	Use     string    `hcl:"use,label"`
	Options cty.Value `hcl:"options,optional"`
}

func parseHCL(name string, src []byte) (*api.Config, error) {
	var raw hclConfig
	if err := hclsimple.Decode(name, src, nil, &raw); err != nil {
		return nil, err
	}

	cfg := &api.Config{
		SiteName:    raw.SiteName,
		SiteURL:     raw.SiteURL,
		PathPrefix:  raw.PathPrefix,
		OutputDir:   raw.OutputDir,
		DataDir:     raw.DataDir,
		PagesDir:    raw.PagesDir,
		TmpDir:      raw.TmpDir,
		Concurrency: raw.Concurrency,
	}
	var err error
	if cfg.Metadata, err = objectValue("metadata", raw.Metadata); err != nil {
		return nil, err
	}
	for _, t := range raw.Templates {
		cfg.Templates = append(cfg.Templates, api.TemplateConfig(t))
	}
	for _, p := range raw.Plugins {
		opts, err := objectValue(p.Use, p.Options)
		if err != nil {
			return nil, err
		}
		cfg.Plugins = append(cfg.Plugins, api.PluginConfig{Use: p.Use, Options: opts})
	}
	return cfg, nil
}

// objectValue converts an HCL object expression into plain Go values by
// way of its JSON encoding.
func objectValue(subject string, v cty.Value) (map[string]any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, errdefs.NewConfig(subject, "value must be known")
	}
	ty := v.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, errdefs.NewConfig(subject, "expected an object, got %s", ty.FriendlyName())
	}
	b, err := ctyjson.Marshal(v, ty)
	if err != nil {
		return nil, errdefs.NewConfig(subject, "%v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, errdefs.NewConfig(subject, "%v", err)
	}
	return out, nil
}
