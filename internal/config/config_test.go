package config

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsome/gridsome/api"
	"github.com/gridsome/gridsome/internal/errdefs"
)

// Each format describes the same project.
var want = &api.Config{
	SiteName:  "My blog",
	OutputDir: "public",
	PagesDir:  DefaultPagesDir,
	TmpDir:    DefaultTmpDir,
	Templates: []api.TemplateConfig{
		{TypeName: "Post", Route: "/blog/:year/:slug", Component: "src/templates/Post.vue"},
		{TypeName: "Doc", Component: "src/layouts/Doc.vue"},
	},
	Plugins: []api.PluginConfig{
		{Use: "source-filesystem", Options: map[string]any{"path": "content/posts", "typeName": "Post"}},
	},
	Metadata: map[string]any{"author": "Ann"},
}

func TestParse_Formats(t *testing.T) {
	sources := map[string]string{
		"gridsome.hcl": `
site_name  = "My blog"
output_dir = "public"
metadata   = { author = "Ann" }

template "Post" {
  route = "/blog/:year/:slug"
}

template "Doc" {
  component = "src/layouts/Doc.vue"
}

plugin "source-filesystem" {
  options = {
    path     = "content/posts"
    typeName = "Post"
  }
}
`,
		"gridsome.json": `{
  // comments and trailing commas are fine
  "siteName": "My blog",
  "outputDir": "public",
  "metadata": {"author": "Ann"},
  "templates": [
    {"typeName": "Post", "route": "/blog/:year/:slug"},
    {"typeName": "Doc", "component": "src/layouts/Doc.vue"},
  ],
  "plugins": [
    {"use": "source-filesystem", "options": {"path": "content/posts", "typeName": "Post"}},
  ],
}`,
		"gridsome.yaml": `
siteName: My blog
outputDir: public
metadata:
  author: Ann
templates:
  - typeName: Post
    route: /blog/:year/:slug
  - typeName: Doc
    component: src/layouts/Doc.vue
plugins:
  - use: source-filesystem
    options:
      path: content/posts
      typeName: Post
`,
	}
	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			cfg, err := Parse(name, []byte(src))
			require.NoError(t, err)
			assert.Equal(t, want, cfg)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]struct {
		name, src string
		subject   string
	}{
		"hcl syntax":        {"gridsome.hcl", `site_name = `, "gridsome.hcl"},
		"hcl metadata":      {"gridsome.hcl", `metadata = "nope"`, "metadata"},
		"json unknown key":  {"gridsome.json", `{"siteNmae": "x"}`, "gridsome.json"},
		"yaml unknown key":  {"gridsome.yaml", "outDir: x\n", "gridsome.yaml"},
		"format":            {"gridsome.toml", ``, "gridsome.toml"},
		"missing type name": {"gridsome.json", `{"templates": [{"route": "/x"}]}`, "templates[0]"},
		"duplicate":         {"gridsome.json", `{"templates": [{"typeName": "A"}, {"typeName": "A"}]}`, "A"},
		"relative route":    {"gridsome.json", `{"templates": [{"typeName": "A", "route": "a/:id"}]}`, "A"},
		"plugin use":        {"gridsome.json", `{"plugins": [{}]}`, "plugins[0]"},
		"root output":       {"gridsome.json", `{"outputDir": "./"}`, "outputDir"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(tc.name, []byte(tc.src))
			require.Error(t, err)
			var cerr *errdefs.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tc.subject, cerr.Subject)
		})
	}
}

func TestLoad(t *testing.T) {
	fs := memfs.New()
	cfg, name, err := Load(fs)
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Equal(t, DefaultOutputDir, cfg.OutputDir)
	assert.Equal(t, DefaultPagesDir, cfg.PagesDir)

	require.NoError(t, util.WriteFile(fs, YAMLFile, []byte("siteName: yaml\n"), 0o644))
	require.NoError(t, util.WriteFile(fs, JSONFile, []byte(`{"siteName": "json"}`), 0o644))
	cfg, name, err = Load(fs)
	require.NoError(t, err)
	assert.Equal(t, JSONFile, name)
	assert.Equal(t, "json", cfg.SiteName)
}
