package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsome/gridsome/internal/config"
	"github.com/gridsome/gridsome/internal/errdefs"
	"github.com/gridsome/gridsome/internal/manifest"
	"github.com/gridsome/gridsome/internal/pages"
	"github.com/gridsome/gridsome/internal/plugins"
	"github.com/gridsome/gridsome/internal/queue"
	"github.com/gridsome/gridsome/internal/store"
)

const projectConfig = `
siteName: Example
dataDir: data
templates:
  - typeName: Post
    route: /blog/:slug
plugins:
  - use: source-filesystem
    options:
      path: content/posts
      typeName: Post
  - use: transformer-markdown
`

var projectFiles = map[string]string{
	"content/posts/first.md":  "---\ntitle: First\n---\nOne.\n",
	"content/posts/second.md": "---\ntitle: Second\n---\nTwo.\n",
	"content/posts/third.md":  "---\ntitle: Third\n---\nThree.\n",
	"src/pages/Index.vue":     "<template/>\n<page-query>\n{ metadata { siteName } allPost { totalCount } }\n</page-query>\n",
	"src/pages/Blog.vue":      "<page-query>\n{ allPost(perPage: 2) @paginate { edges { node { title } } } }\n</page-query>\n",
	"src/templates/Post.vue":  "<page-query>\nquery ($id: ID!) { post(id: $id) { title } }\n</page-query>\n",
}

func newProject(t *testing.T, dir string) *App {
	t.Helper()
	fs := memfs.New()
	for name, body := range projectFiles {
		require.NoError(t, util.WriteFile(fs, name, []byte(body), 0o644))
	}
	cfg, err := config.Parse(config.YAMLFile, []byte(projectConfig))
	require.NoError(t, err)

	a, err := New(fs, cfg, Options{Dir: dir})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a := newProject(t, dir)

	entries, err := a.Build(ctx)
	require.NoError(t, err)

	var got []string
	for _, e := range entries {
		require.NoError(t, e.Err, e.Path)
		got = append(got, e.Path)
	}
	assert.Equal(t, []string{"/", "/blog", "/blog/2", "/blog/first", "/blog/second", "/blog/third"}, got)

	home := entries[0]
	assert.Equal(t, map[string]any{"siteName": "Example"}, home.Data["metadata"])
	assert.Equal(t, 3, home.Data["allPost"].(map[string]any)["totalCount"])

	first := entries[3]
	assert.Equal(t, queue.KindDynamic, first.Kind)
	assert.Equal(t, map[string]any{"title": "First"}, first.Data["post"])

	for _, name := range []string{manifest.RoutesFile, manifest.ConfigFile, manifest.QueueDBFile} {
		_, err := os.Stat(filepath.Join(dir, config.DefaultTmpDir, name))
		assert.NoError(t, err, name)
	}
	rows, err := manifest.ReadQueueDB(ctx, filepath.Join(dir, config.DefaultTmpDir, manifest.QueueDBFile))
	require.NoError(t, err)
	assert.Len(t, rows, len(entries))

	_, err = os.Stat(filepath.Join(dir, "data", "blog", "first", "index.json"))
	assert.NoError(t, err)
}

func TestBootstrap_HookOrder(t *testing.T) {
	ctx := context.Background()
	a := newProject(t, t.TempDir())

	var calls []string
	record := func(name string) func(*App) error {
		return func(*App) error {
			calls = append(calls, name)
			return nil
		}
	}
	a.Hooks.Bootstrapped.Tap("test", record("bootstrapped"))
	a.Hooks.CreatePages.Tap("test", record("createPages"))
	a.Hooks.CreateSchema.Tap("test", record("createSchema"))
	a.Hooks.LoadSource.TapAsync("test", func(ctx context.Context, a *App) error {
		calls = append(calls, "loadSource")
		c, err := a.Store.AddCollection("Author", store.CollectionOptions{})
		if err != nil {
			return err
		}
		_, err = c.AddNode(store.NodeInput{ID: "ann", Title: "Ann"})
		return err
	})

	require.NoError(t, a.Bootstrap(ctx))
	assert.Equal(t, []string{"loadSource", "createSchema", "createPages", "bootstrapped"}, calls)

	res := a.Schema.GraphQL(ctx, `{ author(id: "ann") { title } }`, nil)
	require.NoError(t, res.Err())
	assert.Equal(t, map[string]any{"title": "Ann"}, res.Data["author"])
}

func TestFollowChanges_ContentOnlyChange(t *testing.T) {
	ctx := context.Background()
	a := newProject(t, t.TempDir())
	require.NoError(t, a.Bootstrap(ctx))

	var (
		mu    sync.Mutex
		paths []string
	)
	co, stop := a.followChanges(func() {
		entries, err := a.RenderQueue(ctx)
		assert.NoError(t, err)
		mu.Lock()
		defer mu.Unlock()
		paths = paths[:0]
		for _, e := range entries {
			paths = append(paths, e.Path)
		}
	})
	defer stop()

	posts, ok := a.Store.Collection("Post")
	require.True(t, ok)
	_, err := posts.AddNode(store.NodeInput{ID: "fourth", Title: "Fourth"})
	require.NoError(t, err)
	co.Flush()

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, paths, "/blog/fourth")
}

func TestPagesAPI_UpdateRouteAndRemoveByComponent(t *testing.T) {
	a := newProject(t, t.TempDir())
	var api plugins.PagesAPI = pagesAPI{a}

	p, err := api.UpdateRoute(pages.PageOptions{Path: "/tags", Component: "Tags.vue"}, pages.RouteMeta{Query: "{ metadata { siteName } }"})
	require.NoError(t, err)
	assert.Equal(t, "/tags", p.Path)
	assert.Equal(t, "{ metadata { siteName } }", a.Pages.Meta("Tags.vue").Query)

	_, err = api.CreatePage(pages.PageOptions{Path: "/tags/2", Component: "Tags.vue"})
	require.NoError(t, err)
	assert.Equal(t, 2, api.RemovePagesByComponent("Tags.vue"))
	_, ok := api.FindPage("/tags")
	assert.False(t, ok)
}

func TestNew_UnknownPlugin(t *testing.T) {
	cfg, err := config.Parse(config.JSONFile, []byte(`{"plugins": [{"use": "source-contentful"}]}`))
	require.NoError(t, err)
	_, err = New(memfs.New(), cfg, Options{})
	assert.True(t, errdefs.IsConfig(err))
}
