package plugins

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsome/gridsome/api"
	"github.com/gridsome/gridsome/internal/errdefs"
	"github.com/gridsome/gridsome/internal/store"
)

type named string

func (n named) Name() string { return string(n) }

type source struct {
	named
	err error
}

func (s source) LoadSource(context.Context, SourceAPI) error { return s.err }

type transformer struct {
	named
	mimeTypes []string
}

func (t transformer) MimeTypes() []string { return t.mimeTypes }

func (t transformer) Parse(context.Context, []byte) (store.NodeInput, error) {
	return store.NodeInput{Title: string(t.named)}, nil
}

func factory(p Plugin) Factory {
	return func(map[string]any) (Plugin, error) { return p, nil }
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("b", factory(source{named: "b"})))
	require.NoError(t, r.Register("a", factory(source{named: "a"})))
	assert.Equal(t, []string{"a", "b"}, r.Names())

	err := r.Register("a", factory(source{named: "a"}))
	assert.True(t, errdefs.IsConfig(err))
	assert.True(t, errdefs.IsConfig(r.Register("", nil)))
}

func TestRegistry_Instantiate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("src", factory(source{named: "src"})))
	require.NoError(t, r.Register("md", factory(transformer{named: "md", mimeTypes: []string{"text/markdown"}})))
	require.NoError(t, r.Register("md2", factory(transformer{named: "md2", mimeTypes: []string{"text/markdown"}})))
	require.NoError(t, r.Register("none", factory(named("none"))))
	require.NoError(t, r.Register("broken", func(map[string]any) (Plugin, error) { return nil, errors.New("bad options") }))

	set, err := r.Instantiate([]api.PluginConfig{{Use: "src"}, {Use: "md"}})
	require.NoError(t, err)
	assert.Len(t, set.Sources, 1)
	tr, ok := set.Transformer("text/markdown")
	require.True(t, ok)
	assert.Equal(t, "md", tr.Name())
	_, ok = set.Transformer("text/html")
	assert.False(t, ok)

	cases := map[string]struct {
		use     []string
		subject string
	}{
		"unknown":       {[]string{"nope"}, "nope"},
		"no capability": {[]string{"none"}, "none"},
		"mime conflict": {[]string{"md", "md2"}, "md2"},
		"factory error": {[]string{"broken"}, "broken"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var cfgs []api.PluginConfig
			for _, u := range tc.use {
				cfgs = append(cfgs, api.PluginConfig{Use: u})
			}
			_, err := r.Instantiate(cfgs)
			var cerr *errdefs.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tc.subject, cerr.Subject)
		})
	}
}

func TestSet_LoadSourcesStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	set := &Set{}
	require.NoError(t, set.Add(source{named: "ok"}))
	require.NoError(t, set.Add(source{named: "fails", err: boom}))

	err := set.LoadSources(context.Background(), nil)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "fails: load source")
}

func TestDecodeOptions(t *testing.T) {
	var opts struct {
		Path  string `json:"path"`
		Depth int    `json:"depth"`
	}
	require.NoError(t, DecodeOptions("p", map[string]any{"path": "content", "depth": float64(2)}, &opts))
	assert.Equal(t, "content", opts.Path)
	assert.Equal(t, 2, opts.Depth)

	require.NoError(t, DecodeOptions("p", nil, &opts))

	err := DecodeOptions("p", map[string]any{"pth": "x"}, &opts)
	assert.True(t, errdefs.IsConfig(err))
}
