package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vramfs/vramfs/internal/vram"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestIndexRoot(t *testing.T) {
	ix := newTestIndex(t)

	root, err := ix.Find("/", Any)
	require.NoError(t, err)
	assert.EqualValues(t, 1, root.ID)
	assert.True(t, root.Dir)
	assert.EqualValues(t, vram.BlockSize, root.Size)
	assert.NotZero(t, root.CTime)

	_, err = ix.Find("/", FilesOnly)
	assert.ErrorIs(t, err, ErrIsDir)
}

func TestIndexLookup(t *testing.T) {
	ix := newTestIndex(t)

	dir, err := ix.Mkdir("/models")
	require.NoError(t, err)
	require.True(t, dir.Dir)

	file, err := ix.Create("/models/weights.bin")
	require.NoError(t, err)
	require.False(t, file.Dir)
	assert.Zero(t, file.Size)
	assert.Equal(t, dir.ID, file.Parent)

	t.Run("find nested entry", func(t *testing.T) {
		got, err := ix.Find("/models/weights.bin", Any)
		require.NoError(t, err)
		assert.Equal(t, file.ID, got.ID)
	})

	t.Run("missing entry", func(t *testing.T) {
		_, err := ix.Find("/models/missing", Any)
		assert.ErrorIs(t, err, ErrNotExist)
	})

	t.Run("file in the middle of the path", func(t *testing.T) {
		_, err := ix.Find("/models/weights.bin/deeper", Any)
		assert.ErrorIs(t, err, ErrNotDir)
	})

	t.Run("filters", func(t *testing.T) {
		_, err := ix.Find("/models/weights.bin", DirsOnly)
		assert.ErrorIs(t, err, ErrNotDir)
		_, err = ix.Find("/models", FilesOnly)
		assert.ErrorIs(t, err, ErrIsDir)
	})

	t.Run("duplicate entries are rejected", func(t *testing.T) {
		_, err := ix.Create("/models/weights.bin")
		assert.ErrorIs(t, err, ErrExist)
		_, err = ix.Mkdir("/models")
		assert.ErrorIs(t, err, ErrExist)
	})

	t.Run("parent must exist", func(t *testing.T) {
		_, err := ix.Create("/nope/file")
		assert.ErrorIs(t, err, ErrNotExist)
	})

	t.Run("parent must be a directory", func(t *testing.T) {
		_, err := ix.Create("/models/weights.bin/child")
		assert.ErrorIs(t, err, ErrNotDir)
	})
}

func TestIndexList(t *testing.T) {
	ix := newTestIndex(t)

	_, err := ix.Mkdir("/a")
	require.NoError(t, err)
	_, err = ix.Create("/a/one")
	require.NoError(t, err)
	_, err = ix.Create("/a/two")
	require.NoError(t, err)

	children, err := ix.List("/a")
	require.NoError(t, err)
	names := make([]string, 0, len(children))
	for _, c := range children {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"one", "two"}, names)

	t.Run("root listing", func(t *testing.T) {
		children, err := ix.List("/")
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.Equal(t, "a", children[0].Name)
	})

	t.Run("listing a file fails", func(t *testing.T) {
		_, err := ix.List("/a/one")
		assert.ErrorIs(t, err, ErrNotDir)
	})

	t.Run("empty directory", func(t *testing.T) {
		_, err := ix.Mkdir("/empty")
		require.NoError(t, err)
		children, err := ix.List("/empty")
		require.NoError(t, err)
		assert.Empty(t, children)
	})
}

func TestIndexAttributes(t *testing.T) {
	ix := newTestIndex(t)

	file, err := ix.Create("/data")
	require.NoError(t, err)

	require.NoError(t, ix.SetSize(file.ID, 12345))
	got, err := ix.Get(file.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 12345, got.Size)
	assert.GreaterOrEqual(t, got.MTime, file.MTime)

	before := time.Now().Unix()
	require.NoError(t, ix.Touch(file.ID))
	got, err = ix.Get(file.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got.ATime, before)

	t.Run("unknown id", func(t *testing.T) {
		err := ix.SetSize(99999, 1)
		assert.ErrorIs(t, err, ErrNotExist)
		_, err = ix.Get(99999)
		assert.ErrorIs(t, err, ErrNotExist)
	})
}
