package queue

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsome/gridsome/internal/errdefs"
	"github.com/gridsome/gridsome/internal/pages"
	"github.com/gridsome/gridsome/internal/schema"
	"github.com/gridsome/gridsome/internal/store"
)

type row struct {
	Path      string
	Kind      Kind
	Component string
	Page      int
}

func rows(entries []Entry) []row {
	out := make([]row, len(entries))
	for i, e := range entries {
		out[i] = row{Path: e.Path, Kind: e.Kind, Component: e.Component, Page: e.Page}
	}
	return out
}

type fixture struct {
	store    *store.Store
	registry *pages.Registry
	builder  *Builder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.New(nil)
	reg := pages.NewRegistry(nil)
	return &fixture{
		store:    st,
		registry: reg,
		builder:  NewBuilder(st, reg, schema.New(st, nil), Options{OutputDir: "dist", Concurrency: 4}, nil),
	}
}

func (f *fixture) posts(t *testing.T, n int) *store.Collection {
	t.Helper()
	c, err := f.store.AddCollection("Post", store.CollectionOptions{})
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, err := c.AddNode(store.NodeInput{ID: fmt.Sprint(i), Title: fmt.Sprintf("Post %d", i), Fields: map[string]any{"n": i}})
		require.NoError(t, err)
	}
	return c
}

func TestBuild_TemplateRouteOverRoutelessCollection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.posts(t, 50)

	tpl := pages.NewTemplates(f.store, f.registry, nil, 0, nil)
	defer tpl.Close()
	require.NoError(t, tpl.Add(ctx, pages.Template{TypeName: "Post", Route: "/:slug", Component: "src/templates/Post.vue"}))

	entries, err := f.builder.Build(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 50)

	seen := make(map[string]bool)
	for _, e := range entries {
		assert.Equal(t, KindDynamic, e.Kind)
		assert.Equal(t, "src/templates/Post.vue", e.Component)
		assert.Equal(t, "/:slug", e.Route)
		assert.False(t, seen[e.Path], "duplicate path %s", e.Path)
		seen[e.Path] = true
	}
	assert.Equal(t, "/post-0", entries[0].Path)
	assert.Equal(t, filepath.Join("dist", "post-0", "index.html"), entries[0].HTMLOutput)
	assert.Equal(t, map[string]any{"id": "0", "path": "/post-0"}, entries[0].Variables)
}

func TestBuild_OrderAndPagination(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.posts(t, 5)
	docs, err := f.store.AddCollection("Doc", store.CollectionOptions{})
	require.NoError(t, err)
	_, err = docs.AddNode(store.NodeInput{ID: "intro", Path: "/docs/intro"})
	require.NoError(t, err)

	reg := f.registry
	_, err = reg.UpdateRoute(pages.PageOptions{Path: "/blog", Component: "Blog.vue"}, pages.RouteMeta{
		Query:    `query { allPost(perPage: 2, sortBy: "n", order: ASC) @paginate { edges { node { id } } } }`,
		Paginate: true,
	})
	require.NoError(t, err)
	_, err = reg.CreatePage(pages.PageOptions{Path: "/about", Component: "About.vue"})
	require.NoError(t, err)
	_, err = reg.UpdateRoute(pages.PageOptions{Path: "/", Component: "Index.vue"}, pages.RouteMeta{
		Query:    `query { allPost(perPage: 4) @paginate { totalCount } }`,
		Paginate: true,
	})
	require.NoError(t, err)
	_, err = reg.CreatePage(pages.PageOptions{Path: "/user/:id", Component: "User.vue"})
	require.NoError(t, err)

	tpl := pages.NewTemplates(f.store, reg, nil, 0, nil)
	defer tpl.Close()
	require.NoError(t, tpl.Add(ctx, pages.Template{TypeName: "Doc", Component: "Doc.vue"}))
	require.NoError(t, reg.AddDynamicRoute(pages.DynamicRoute{TypeName: "Tag", Route: "/tag/:id", Component: "Tag.vue"}))

	entries, err := f.builder.Build(ctx)
	require.NoError(t, err)

	want := []row{
		{"/", KindPaged, "Index.vue", 1},
		{"/about", KindStatic, "About.vue", 0},
		{"/user/:id", KindStatic, "User.vue", 0},
		{"/2", KindPaged, "Index.vue", 2},
		{"/blog", KindPaged, "Blog.vue", 1},
		{"/blog/2", KindPaged, "Blog.vue", 2},
		{"/blog/3", KindPaged, "Blog.vue", 3},
		{"/docs/intro", KindTemplate, "Doc.vue", 0},
	}
	if diff := cmp.Diff(want, rows(entries)); diff != "" {
		t.Fatalf("render queue mismatch (-want +got):\n%s", diff)
	}

	edges := func(e Entry) []string {
		var ids []string
		for _, raw := range e.Data["allPost"].(map[string]any)["edges"].([]any) {
			ids = append(ids, raw.(map[string]any)["node"].(map[string]any)["id"].(string))
		}
		return ids
	}
	assert.Equal(t, []string{"0", "1"}, edges(entries[4]))
	assert.Equal(t, []string{"2", "3"}, edges(entries[5]))
	assert.Equal(t, []string{"4"}, edges(entries[6]))
	assert.Equal(t, map[string]any{"page": 2}, entries[5].Variables)
	assert.Equal(t, map[string]any{"page": 2}, entries[3].Variables)
	assert.Equal(t, filepath.Join("dist", "index.html"), entries[0].HTMLOutput)
	assert.Equal(t, filepath.Join("dist", "2", "index.html"), entries[3].HTMLOutput)
	assert.Equal(t, filepath.Join("dist", "user", "_id.html"), entries[2].HTMLOutput)
	assert.Equal(t, filepath.Join("dist", "blog", "3", "index.html"), entries[6].HTMLOutput)
}

func TestBuild_QueryErrorsStayOnTheirPage(t *testing.T) {
	f := newFixture(t)
	f.posts(t, 1)
	_, err := f.registry.UpdateRoute(pages.PageOptions{Path: "/broken", Component: "Broken.vue"}, pages.RouteMeta{Query: "{ nope }"})
	require.NoError(t, err)
	_, err = f.registry.UpdateRoute(pages.PageOptions{Path: "/ok", Component: "Ok.vue"}, pages.RouteMeta{Query: "{ allPost { totalCount } }"})
	require.NoError(t, err)

	entries, err := f.builder.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.True(t, errdefs.IsQuery(entries[0].Err))
	assert.Contains(t, entries[0].Err.Error(), "/broken")
	assert.NoError(t, entries[1].Err)
	assert.Equal(t, 1, entries[1].Data["allPost"].(map[string]any)["totalCount"])
}

func TestBuild_PathCollision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.posts(t, 1)
	_, err := f.registry.CreatePage(pages.PageOptions{Path: "/post-0", Component: "src/pages/Post0.vue"})
	require.NoError(t, err)
	require.NoError(t, f.registry.AddDynamicRoute(pages.DynamicRoute{TypeName: "Post", Route: "/:slug", Component: "Post.vue"}))
	c, _ := f.store.Collection("Post")
	require.NoError(t, c.SetRoute("/:slug"))

	_, err = f.builder.Build(ctx)
	var collision *errdefs.PathCollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, filepath.Join("dist", "post-0", "index.html"), collision.Path)
	assert.Equal(t, "src/pages/Post0.vue", collision.Existing)
	assert.Contains(t, collision.Conflicting, "Post:0")
}

func TestBuild_CollisionOnDecodedOutput(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.CreatePage(pages.PageOptions{Path: "/a b", Component: "Space.vue"})
	require.NoError(t, err)
	_, err = f.registry.CreatePage(pages.PageOptions{Path: "/a%20b", Component: "Escaped.vue"})
	require.NoError(t, err)

	_, err = f.builder.Build(context.Background())
	var collision *errdefs.PathCollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, filepath.Join("dist", "a b", "index.html"), collision.Path)
	assert.Equal(t, "Space.vue", collision.Existing)
	assert.Equal(t, "Escaped.vue", collision.Conflicting)
}

func TestBuild_Canceled(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.CreatePage(pages.PageOptions{Path: "/", Component: "Index.vue"})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.builder.Build(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTMLOutput(t *testing.T) {
	cases := []struct{ path, want string }{
		{"/", filepath.Join("out", "index.html")},
		{"/about-us", filepath.Join("out", "about-us", "index.html")},
		{"/blog/caf%C3%A9", filepath.Join("out", "blog", "café", "index.html")},
		{"/user/:id", filepath.Join("out", "user", "_id.html")},
		{"/user/profile-:id", filepath.Join("out", "user", "profile-_id.html")},
		{"/%2E%2E/%2E%2E/etc", filepath.Join("out", "%2E%2E", "%2E%2E", "etc", "index.html")},
		{"/../x", filepath.Join("out", "%2E%2E", "x", "index.html")},
		{"/a%2Fb", filepath.Join("out", "a%2Fb", "index.html")},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTMLOutput("out", tc.path), tc.path)
	}
	assert.Equal(t, filepath.Join("data", "blog", "index.json"), DataOutput("data", "/blog"))
	assert.Empty(t, DataOutput("", "/blog"))
}
