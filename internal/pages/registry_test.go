package pages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsome/gridsome/internal/errdefs"
)

func TestRegistry_CreateAndFind(t *testing.T) {
	r := NewRegistry(nil)
	var events []ChangeKind
	r.OnChange().Tap("test", func(ch Change) error {
		events = append(events, ch.Kind)
		return nil
	})

	p, err := r.CreatePage(PageOptions{Path: "/about", Component: "src/pages/About.vue"})
	require.NoError(t, err)
	assert.Equal(t, StateCreated, p.State)

	got, ok := r.FindPage("/about")
	require.True(t, ok)
	assert.Same(t, p, got)

	_, err = r.CreatePage(PageOptions{Path: "/about", Component: "src/pages/Other.vue"})
	require.True(t, errdefs.IsPathCollision(err))
	assert.Contains(t, err.Error(), "src/pages/About.vue")
	assert.Contains(t, err.Error(), "src/pages/Other.vue")

	updated, err := r.UpdateRoute(PageOptions{Path: "/about", Component: "src/pages/About.vue"}, RouteMeta{Query: "{ metadata }"})
	require.NoError(t, err)
	assert.Equal(t, StateUpdated, updated.State)
	assert.Equal(t, "{ metadata }", r.Meta("src/pages/About.vue").Query)

	require.NoError(t, r.RemovePageByPath("/about"))
	assert.ErrorIs(t, r.RemovePageByPath("/about"), ErrNotFound)
	assert.Equal(t, []ChangeKind{ChangeCreate, ChangeUpdate, ChangeRemove}, events)
}

func TestRegistry_Validation(t *testing.T) {
	r := NewRegistry(nil)
	cases := []PageOptions{
		{Component: "a.vue"},
		{Path: "relative", Component: "a.vue"},
		{Path: "/ok"},
	}
	for _, opts := range cases {
		_, err := r.CreatePage(opts)
		assert.True(t, errdefs.IsValidation(err), "%+v", opts)
	}
}

func TestRegistry_NormalizesPaths(t *testing.T) {
	r := NewRegistry(nil)
	p, err := r.CreatePage(PageOptions{Path: "/about/", Component: "About.vue"})
	require.NoError(t, err)
	assert.Equal(t, "/about", p.Path)

	_, err = r.CreatePage(PageOptions{Path: "//about", Component: "Other.vue"})
	assert.True(t, errdefs.IsPathCollision(err))

	_, ok := r.FindPage("/about/")
	assert.True(t, ok)

	for _, path := range []string{"/%2E%2E/%2E%2E/etc", "/../etc", "/a/./b", "/a%2Fb", "/a%5Cb"} {
		_, err := r.CreatePage(PageOptions{Path: path, Component: "Bad.vue"})
		assert.True(t, errdefs.IsValidation(err), path)
	}
	require.NoError(t, r.RemovePageByPath("/about/"))
	assert.Empty(t, r.Pages())
}

func TestRegistry_RemoveByComponentAndOwner(t *testing.T) {
	for _, disabled := range []bool{false, true} {
		r := NewRegistry(nil)
		mustCreate := func(opts PageOptions) {
			_, err := r.CreatePage(opts)
			require.NoError(t, err)
		}
		if disabled {
			r.DisableIndices()
		}
		mustCreate(PageOptions{Path: "/a", Component: "A.vue"})
		mustCreate(PageOptions{Path: "/a/2", Component: "A.vue"})
		mustCreate(PageOptions{Path: "/p/1", Component: "Post.vue", Owner: "uid1", Kind: KindTemplate})
		mustCreate(PageOptions{Path: "/p/2", Component: "Post.vue", Owner: "uid2", Kind: KindTemplate})

		assert.Equal(t, 2, r.RemovePagesByComponent("A.vue"))
		assert.Equal(t, 1, r.RemovePagesByOwner("uid1"))
		assert.Equal(t, 0, r.RemovePagesByOwner("missing"))
		if disabled {
			r.EnableIndices()
		}

		pages := r.Pages()
		require.Len(t, pages, 1)
		assert.Equal(t, "/p/2", pages[0].Path)
		assert.Equal(t, 1, r.RemovePagesByComponent("Post.vue"))
	}
}

func TestRegistry_ActivateAndDynamicRoutes(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.CreatePage(PageOptions{Path: "/user/:id", Component: "User.vue"})
	require.NoError(t, err)
	r.Activate()
	p, _ := r.FindPage("/user/:id")
	assert.Equal(t, StateActive, p.State)
	assert.True(t, p.Dynamic())

	require.NoError(t, r.AddDynamicRoute(DynamicRoute{TypeName: "Post", Route: "/:slug", Component: "Post.vue"}))
	require.NoError(t, r.AddDynamicRoute(DynamicRoute{TypeName: "Post", Route: "/blog/:slug", Component: "Post.vue"}))
	assert.Equal(t, []DynamicRoute{{TypeName: "Post", Route: "/blog/:slug", Component: "Post.vue"}}, r.DynamicRoutes())
	assert.True(t, errdefs.IsValidation(r.AddDynamicRoute(DynamicRoute{TypeName: "Tag"})))
}

func TestCreatePagePath(t *testing.T) {
	cases := []struct{ file, want string }{
		{"src/pages/Index.vue", "/"},
		{"src/pages/AboutUs.vue", "/about-us"},
		{"src/pages/section/Index.vue", "/section"},
		{"user/[id]/Profile.vue", "/user/:id/profile"},
		{"user/profile-[id].vue", "/user/profile-:id"},
		{"src/pages/blog/my_post.md", "/blog/my-post"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CreatePagePath(tc.file, "src/pages"), tc.file)
	}
}
