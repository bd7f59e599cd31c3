package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "work")
	w, err := NewWorkDir(root)
	require.NoError(t, err)
	assert.Equal(t, root, w.Root())

	dir, err := w.ItemDir("01J0TESTITEM")
	require.NoError(t, err)
	assert.DirExists(t, dir)

	path := w.FilePath("01J0TESTITEM", "source.mp4")
	assert.Equal(t, filepath.Join(dir, "source.mp4"), path)
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	require.NoError(t, w.Remove("01J0TESTITEM"))
	assert.NoDirExists(t, dir)

	t.Run("removing twice is fine", func(t *testing.T) {
		assert.NoError(t, w.Remove("01J0TESTITEM"))
	})

	t.Run("empty item id rejected", func(t *testing.T) {
		assert.Error(t, w.Remove(""))
	})
}
