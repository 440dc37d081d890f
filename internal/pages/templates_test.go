package pages

import (
	"context"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsome/gridsome/internal/store"
)

func paths(pages []*Page) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.Path
	}
	return out
}

func TestTemplates_StaticPagesFollowNodes(t *testing.T) {
	ctx := context.Background()
	st := store.New(nil)
	docs, err := st.AddCollection("Doc", store.CollectionOptions{})
	require.NoError(t, err)
	_, err = docs.AddNode(store.NodeInput{ID: "intro", Path: "/docs/intro"})
	require.NoError(t, err)

	reg := NewRegistry(nil)
	tpl := NewTemplates(st, reg, nil, time.Hour, nil)
	defer tpl.Close()
	require.NoError(t, tpl.Add(ctx, Template{TypeName: "Doc", Component: "src/templates/Doc.vue"}))

	intro, ok := reg.FindPage("/docs/intro")
	require.True(t, ok)
	assert.Equal(t, KindTemplate, intro.Kind)
	assert.Equal(t, map[string]any{"id": "intro", "path": "/docs/intro"}, intro.Context)

	_, err = docs.AddNode(store.NodeInput{ID: "setup", Path: "/docs/setup"})
	require.NoError(t, err)
	_, ok = reg.FindPage("/docs/setup")
	assert.False(t, ok, "changes are applied on drain")
	tpl.Flush()
	assert.Equal(t, []string{"/docs/intro", "/docs/setup"}, paths(reg.Pages()))

	// a moved node moves its page
	_, err = docs.UpdateNode(store.NodeInput{ID: "setup", Path: "/docs/install"})
	require.NoError(t, err)
	tpl.Flush()
	assert.Equal(t, []string{"/docs/intro", "/docs/install"}, paths(reg.Pages()))

	// removing the node removes the page; re-adding restores it
	require.NoError(t, docs.RemoveNode("intro"))
	tpl.Flush()
	_, ok = reg.FindPage("/docs/intro")
	assert.False(t, ok)

	_, err = docs.AddNode(store.NodeInput{ID: "intro", Path: "/docs/intro"})
	require.NoError(t, err)
	tpl.Flush()
	restored, ok := reg.FindPage("/docs/intro")
	require.True(t, ok)
	assert.Equal(t, intro.Component, restored.Component)
	assert.Equal(t, intro.Owner, restored.Owner)
	assert.Equal(t, intro.Context, restored.Context)
}

func TestTemplates_AddThenRemoveInOneWindow(t *testing.T) {
	ctx := context.Background()
	st := store.New(nil)
	reg := NewRegistry(nil)
	tpl := NewTemplates(st, reg, nil, time.Hour, nil)
	defer tpl.Close()
	require.NoError(t, tpl.Add(ctx, Template{TypeName: "Doc", Component: "Doc.vue"}))

	docs, _ := st.Collection("Doc")
	_, err := docs.AddNode(store.NodeInput{ID: "tmp", Path: "/tmp"})
	require.NoError(t, err)
	require.NoError(t, docs.RemoveNode("tmp"))
	tpl.Flush()
	assert.Empty(t, reg.Pages())
}

func TestTemplates_PathsRotateInOneWindow(t *testing.T) {
	ctx := context.Background()
	st := store.New(nil)
	docs, err := st.AddCollection("Doc", store.CollectionOptions{})
	require.NoError(t, err)
	a, err := docs.AddNode(store.NodeInput{ID: "a", Path: "/x"})
	require.NoError(t, err)
	b, err := docs.AddNode(store.NodeInput{ID: "b", Path: "/y"})
	require.NoError(t, err)

	reg := NewRegistry(nil)
	tpl := NewTemplates(st, reg, nil, time.Hour, nil)
	defer tpl.Close()
	require.NoError(t, tpl.Add(ctx, Template{TypeName: "Doc", Component: "Doc.vue"}))

	for _, in := range []store.NodeInput{
		{ID: "a", Path: "/z"},
		{ID: "b", Path: "/x"},
		{ID: "a", Path: "/y"},
	} {
		_, err := docs.UpdateNode(in)
		require.NoError(t, err)
	}
	tpl.Flush()

	require.Len(t, reg.Pages(), 2)
	x, ok := reg.FindPage("/x")
	require.True(t, ok)
	assert.Equal(t, b.UID, x.Owner)
	y, ok := reg.FindPage("/y")
	require.True(t, ok)
	assert.Equal(t, a.UID, y.Owner)
	assert.Equal(t, map[string]any{"id": "a", "path": "/y"}, y.Context)
}

func TestTemplates_RoutedCollection(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "src/templates/Post.vue",
		[]byte("<page-query>query ($id: ID!) { post(id: $id) { title } }</page-query>"), 0o644))

	st := store.New(nil)
	posts, err := st.AddCollection("Post", store.CollectionOptions{})
	require.NoError(t, err)
	_, err = posts.AddNode(store.NodeInput{ID: "1", Title: "Hello World"})
	require.NoError(t, err)

	reg := NewRegistry(nil)
	tpl := NewTemplates(st, reg, fs, 0, nil)
	defer tpl.Close()
	require.NoError(t, tpl.Add(ctx, Template{TypeName: "Post", Route: "/:slug", Component: "src/templates/Post.vue"}))

	assert.Equal(t, []DynamicRoute{{TypeName: "Post", Route: "/:slug", Component: "src/templates/Post.vue"}}, reg.DynamicRoutes())
	assert.Empty(t, reg.Pages())
	n, err := posts.GetNode("1")
	require.NoError(t, err)
	assert.Equal(t, "/hello-world", n.Path)
	assert.Contains(t, reg.Meta("src/templates/Post.vue").Query, "post(id: $id)")

	err = tpl.Add(ctx, Template{TypeName: "Tag", Component: "src/templates/Missing.vue"})
	assert.Error(t, err)
}
