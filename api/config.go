package api

// Config is the root project configuration, loaded from gridsome.hcl,
// gridsome.json or gridsome.yaml.
type Config struct {
	// SiteName is exposed as metadata.siteName.
	SiteName string `json:"siteName,omitempty" yaml:"siteName,omitempty"`
	// SiteURL is exposed as metadata.siteUrl.
	SiteURL string `json:"siteUrl,omitempty" yaml:"siteUrl,omitempty"`
	// PathPrefix is prepended to every route by the downstream bundler.
	PathPrefix string `json:"pathPrefix,omitempty" yaml:"pathPrefix,omitempty"`
	// OutputDir receives rendered HTML. Defaults to "dist".
	OutputDir string `json:"outputDir,omitempty" yaml:"outputDir,omitempty"`
	// DataDir receives per-page query results. Empty disables data output.
	DataDir string `json:"dataDir,omitempty" yaml:"dataDir,omitempty"`
	// PagesDir is scanned for page components. Defaults to "src/pages".
	PagesDir string `json:"pagesDir,omitempty" yaml:"pagesDir,omitempty"`
	// TmpDir receives generated manifests. Defaults to ".temp".
	TmpDir string `json:"tmpDir,omitempty" yaml:"tmpDir,omitempty"`
	// Concurrency bounds parallel page queries. Zero uses GOMAXPROCS.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	// Templates bind collections to template components.
	Templates []TemplateConfig `json:"templates,omitempty" yaml:"templates,omitempty"`
	// Plugins are loaded in order.
	Plugins []PluginConfig `json:"plugins,omitempty" yaml:"plugins,omitempty"`
	// Metadata is merged into the store's metadata.
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// TemplateConfig binds a collection to a component.
type TemplateConfig struct {
	// TypeName of the collection.
	TypeName string `json:"typeName" yaml:"typeName"`
	// Route is an optional path template (e.g. "/blog/:year/:slug").
	// Without one, nodes keep the path their source gave them.
	Route string `json:"route,omitempty" yaml:"route,omitempty"`
	// Component renders each node. Defaults to src/templates/<TypeName>.vue.
	Component string `json:"component,omitempty" yaml:"component,omitempty"`
}

// PluginConfig enables a plugin.
type PluginConfig struct {
	// Use is the registered plugin name.
	Use string `json:"use" yaml:"use"`
	// Options are passed to the plugin factory untouched.
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}
