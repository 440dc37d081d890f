package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"gridsome.json":           `{"siteName": "CLI" /* comment */}`,
		"src/pages/Index.vue":     "<template/>",
		"src/pages/AboutUs.vue":   "<page-query>{ metadata { siteName } }</page-query>",
		"src/pages/user/[id].vue": "<template/>",
	}
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { routesJSON = false })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRoutesCommand(t *testing.T) {
	dir := writeProject(t)

	out, err := run(t, "routes", "-C", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "KIND")
	assert.Regexp(t, `static\s+/\s+src/pages/Index.vue`, out)
	assert.Regexp(t, `static\s+/about-us\s+`, out)

	out, err = run(t, "routes", "--json", "-C", dir)
	require.NoError(t, err)
	var routes []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &routes))
	require.Len(t, routes, 3)
	assert.Equal(t, "/", routes[0]["path"])
}

func TestBuildCommand(t *testing.T) {
	dir := writeProject(t)

	out, err := run(t, "build", "-C", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "3 pages queued")

	b, err := os.ReadFile(filepath.Join(dir, ".temp", "routes.json"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"htmlOutput": "dist/user/_id.html"`)
}

func TestBuildCommand_BadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gridsome.json"), []byte(`{"outputDir": "."}`), 0o644))
	_, err := run(t, "build", "-C", dir)
	assert.ErrorContains(t, err, "outputDir")
}
