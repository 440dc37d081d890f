package pages

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePages_DiscoverAndHandle(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	files := map[string]string{
		"src/pages/Index.vue":       "<template><h1>Home</h1></template>",
		"src/pages/AboutUs.vue":     "<page-query>{ metadata { siteName } }</page-query>",
		"src/pages/user/[id].vue":   "<template/>",
		"src/pages/blog/Index.vue":  "<page-query>{ allPost(perPage: 2) @paginate { totalCount } }</page-query>",
		"src/pages/notes.txt":       "ignored",
		"src/components/Header.vue": "<template/>",
	}
	for name, body := range files {
		require.NoError(t, util.WriteFile(fs, name, []byte(body), 0o644))
	}

	reg := NewRegistry(nil)
	fp := NewFilePages(fs, "src/pages", reg, nil)
	require.NoError(t, fp.Discover(ctx))

	assert.ElementsMatch(t, []string{"/", "/about-us", "/user/:id", "/blog"}, paths(reg.Pages()))
	assert.True(t, reg.Meta("src/pages/blog/Index.vue").Paginate)
	assert.Equal(t, "{ metadata { siteName } }", reg.Meta("src/pages/AboutUs.vue").Query)

	// change: the query is re-parsed and the page updated in place
	require.NoError(t, util.WriteFile(fs, "src/pages/AboutUs.vue", []byte("<template/>"), 0o644))
	require.NoError(t, fp.Handle(ctx, "src/pages/AboutUs.vue", OpUpdate))
	p, ok := reg.FindPage("/about-us")
	require.True(t, ok)
	assert.Equal(t, StateUpdated, p.State)
	assert.Empty(t, reg.Meta("src/pages/AboutUs.vue").Query)

	// unlink
	require.NoError(t, fs.Remove("src/pages/user/[id].vue"))
	require.NoError(t, fp.Handle(ctx, "src/pages/user/[id].vue", OpRemove))
	_, ok = reg.FindPage("/user/:id")
	assert.False(t, ok)

	// add
	require.NoError(t, util.WriteFile(fs, "src/pages/Contact.vue", []byte("<template/>"), 0o644))
	require.NoError(t, fp.Handle(ctx, "src/pages/Contact.vue", OpAdd))
	_, ok = reg.FindPage("/contact")
	assert.True(t, ok)

	// files outside the pages root are ignored
	require.NoError(t, fp.Handle(ctx, "src/components/Header.vue", OpAdd))
	assert.Len(t, reg.Pages(), 4)
}

func TestFilePages_MissingRoot(t *testing.T) {
	reg := NewRegistry(nil)
	fp := NewFilePages(memfs.New(), "src/pages", reg, nil)
	require.NoError(t, fp.Discover(context.Background()))
	assert.Empty(t, reg.Pages())
}
