package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	testChdir(t, tmpDir)
	return tmpDir
}

func TestStateOperations(t *testing.T) {
	tmpDir := chdirTemp(t)

	t.Run("Load empty state", func(t *testing.T) {
		state, err := Load()
		require.NoError(t, err)
		assert.Empty(t, state)
	})

	t.Run("Set and Get string value", func(t *testing.T) {
		require.NoError(t, Set("test.key", "test-value"))

		got, err := GetString("test.key")
		require.NoError(t, err)
		assert.Equal(t, "test-value", got)
	})

	t.Run("Get non-existent key", func(t *testing.T) {
		got, ok, err := Get("non.existent")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, got)
	})

	t.Run("GetString on non-string value", func(t *testing.T) {
		require.NoError(t, Set("test.count", 42))
		got, err := GetString("test.count")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Delete key", func(t *testing.T) {
		require.NoError(t, Set("test.delete", "to-be-deleted"))
		require.NoError(t, Delete("test.delete"))

		_, ok, err := Get("test.delete")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("State file location", func(t *testing.T) {
		require.NoError(t, Set("test.location", "value"))
		assert.FileExists(t, filepath.Join(tmpDir, ".chordsync", "state.yml"))
	})
}

func TestProjectSelection(t *testing.T) {
	chdirTemp(t)
	var sel ProjectSelection

	got, err := sel.SelectedProject()
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, sel.SelectProject("p1"))
	got, err = sel.SelectedProject()
	require.NoError(t, err)
	assert.Equal(t, "p1", got)

	require.NoError(t, sel.SelectProject(""))
	_, ok, err := Get(KeySelectedProject)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStateFoundFromSubdirectory(t *testing.T) {
	root := chdirTemp(t)
	require.NoError(t, Set(KeySelectedProject, "p1"))

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	testChdir(t, nested)

	got, err := GetString(KeySelectedProject)
	require.NoError(t, err)
	assert.Equal(t, "p1", got)

	require.NoError(t, Set(KeySelectedProject, "p2"))
	assert.NoDirExists(t, filepath.Join(nested, ".chordsync"))

	entries, err := os.ReadDir(filepath.Join(root, ".chordsync"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files are renamed into place")
	assert.Equal(t, "state.yml", entries[0].Name())
}

// testChdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent to testing.T.Chdir, which needs Go 1.24).
func testChdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
