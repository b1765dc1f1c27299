package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcconv-go/internal/config"
)

func newWorkspace(t *testing.T, ext string) *Workspace {
	t.Helper()
	root := t.TempDir()
	ws, err := New(config.PathsConfig{
		InputDir:  filepath.Join(root, "input"),
		OutputDir: filepath.Join(root, "output"),
		TempDir:   filepath.Join(root, "temp"),
	}, ext)
	require.NoError(t, err)
	return ws
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestEnsureDirectories_Idempotent(t *testing.T) {
	ws := newWorkspace(t, ".las")
	require.NoError(t, ws.EnsureDirectories())
	require.NoError(t, ws.EnsureDirectories())

	for _, dir := range []string{ws.InputDir, ws.OutputDir, ws.TempDir} {
		assert.DirExists(t, dir)
		assert.True(t, filepath.IsAbs(dir))
	}
}

func TestPurgeTempArea(t *testing.T) {
	ws := newWorkspace(t, ".las")
	require.NoError(t, ws.EnsureDirectories())
	touch(t, filepath.Join(ws.TempDir, "a_chunk_000.las"))
	touch(t, filepath.Join(ws.TempDir, "nested", "b.las"))

	removed, err := ws.PurgeTempArea()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.DirExists(t, ws.TempDir)

	entries, err := os.ReadDir(ws.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	removed, err = ws.PurgeTempArea()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestPurgeTempArea_MissingDirectory(t *testing.T) {
	ws := newWorkspace(t, ".las")
	removed, err := ws.PurgeTempArea()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestListInputFiles(t *testing.T) {
	ws := newWorkspace(t, "las")
	require.NoError(t, ws.EnsureDirectories())
	touch(t, filepath.Join(ws.InputDir, "b.las"))
	touch(t, filepath.Join(ws.InputDir, "A.LAS"))
	touch(t, filepath.Join(ws.InputDir, "notes.txt"))
	touch(t, filepath.Join(ws.InputDir, "sub", "c.las"))

	files, err := ws.ListInputFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(ws.InputDir, "A.LAS"),
		filepath.Join(ws.InputDir, "b.las"),
	}, files)
}

func TestListInputFiles_AnyExtension(t *testing.T) {
	ws := newWorkspace(t, "")
	require.NoError(t, ws.EnsureDirectories())
	touch(t, filepath.Join(ws.InputDir, "a.laz"))
	touch(t, filepath.Join(ws.InputDir, "b.las"))

	files, err := ws.ListInputFiles()
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestListInputFiles_MissingDirectory(t *testing.T) {
	ws := newWorkspace(t, ".las")
	_, err := ws.ListInputFiles()
	assert.Error(t, err)
}

func TestMatchFiles(t *testing.T) {
	files := []string{"/in/alpha.las", "/in/Beta.las", "/in/gamma.las"}

	matched, unmatched := MatchFiles(files, []string{"beta.LAS", "alpha", "delta.las", "/elsewhere/gamma.las", "alpha.las"})
	assert.Equal(t, []string{"/in/Beta.las", "/in/alpha.las", "/in/gamma.las"}, matched)
	assert.Equal(t, []string{"delta.las"}, unmatched)
}

func TestMatchFiles_Empty(t *testing.T) {
	matched, unmatched := MatchFiles([]string{"/in/a.las"}, nil)
	assert.Empty(t, matched)
	assert.Empty(t, unmatched)
}
