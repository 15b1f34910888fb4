package fixture

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.ts":                 "",
		"b.js":                 "",
		"nested/c.tsx":         "",
		"nested/lib.d.ts":      "",
		"notes.md":             "",
		"golden/a.golden":      "",
		"golden/stale.ts":      "",
		".cache/hidden.js":     "",
		"nested/deeper/d.ts":   "",
		"nested/testdata/e.js": "",
	})

	files, err := Discover([]string{dir}, DiscoverOptions{})
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		r, err := filepath.Rel(dir, f)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.Equal(t, []string{"a.ts", "b.js", "nested/c.tsx", "nested/deeper/d.ts"}, rel)
}

func TestDiscover_Filter(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"asyncgenerator.js":      "",
		"asyncgeneratorthrow.js": "",
		"loopbeginphi.ts":        "",
	})

	files, err := Discover([]string{dir}, DiscoverOptions{Filter: "async*"})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "asyncgenerator.js", filepath.Base(files[0]))
	assert.Equal(t, "asyncgeneratorthrow.js", filepath.Base(files[1]))
}

func TestDiscover_ExtensionsAndFileRoots(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.ts": "", "b.js": ""})
	single := filepath.Join(dir, "b.js")

	files, err := Discover([]string{dir, single}, DiscoverOptions{Extensions: []string{".js"}})
	require.NoError(t, err)
	assert.Equal(t, []string{single}, files)
}

func TestDiscover_Errors(t *testing.T) {
	_, err := Discover([]string{filepath.Join(t.TempDir(), "missing")}, DiscoverOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixture root")

	_, err = Discover([]string{t.TempDir()}, DiscoverOptions{Filter: "["})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}
