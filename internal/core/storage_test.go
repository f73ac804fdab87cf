package core

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageStore(t *testing.T) {
	root := filepath.Join(t.TempDir(), "public", "images")
	store, err := NewImageStore(root, "images/")
	require.NoError(t, err)

	for _, kind := range []string{KindFavicon, KindThumbnail} {
		info, err := os.Stat(filepath.Join(root, kind))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, root, store.Root())
	assert.Equal(t, "/images", store.Prefix())
	assert.Equal(t, "/images/favicons/42.png", store.PublicPath(KindFavicon, "42"))
	assert.Equal(t, filepath.Join(root, "thumbnails", "42.png"), store.FilePath(KindThumbnail, "42"))

	_, err = NewImageStore("  ", "/images")
	assert.Error(t, err)
}

func TestImageStoreSave(t *testing.T) {
	store, err := NewImageStore(t.TempDir(), "/images")
	require.NoError(t, err)
	data := pngBytes(t, 4, 4, color.White)

	path, err := store.Save(KindThumbnail, "7", data)
	require.NoError(t, err)
	assert.Equal(t, "/images/thumbnails/7.png", path)

	got, err := os.ReadFile(store.FilePath(KindThumbnail, "7"))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	entries, err := os.ReadDir(filepath.Join(store.Root(), KindThumbnail))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files are left behind")
	assert.Equal(t, "7.png", entries[0].Name())

	// Overwrite
	_, err = store.Save(KindThumbnail, "7", []byte("second"))
	require.NoError(t, err)
	got, err = os.ReadFile(store.FilePath(KindThumbnail, "7"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestImageStoreSaveRejectsBadInput(t *testing.T) {
	store, err := NewImageStore(t.TempDir(), "/images")
	require.NoError(t, err)

	_, err = store.Save("avatars", "1", []byte("x"))
	assert.ErrorContains(t, err, "unknown image kind")

	for _, id := range []string{"", "../1", "a/b", "1.png"} {
		_, err = store.Save(KindFavicon, id, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidRecordID, id)
	}
}

func TestImageStoreSaveWriteFailure(t *testing.T) {
	store, err := NewImageStore(t.TempDir(), "/images")
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(store.Root(), KindFavicon)))

	path, err := store.Save(KindFavicon, "1", []byte("x"))
	assert.Error(t, err)
	assert.Empty(t, path)
}

func TestImageStoreRemove(t *testing.T) {
	store, err := NewImageStore(t.TempDir(), "/images")
	require.NoError(t, err)

	_, err = store.Save(KindFavicon, "3", []byte("icon"))
	require.NoError(t, err)

	require.NoError(t, store.Remove("3"))
	_, err = os.Stat(store.FilePath(KindFavicon, "3"))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, store.Remove("3"), "removing missing images is not an error")
	assert.ErrorIs(t, store.Remove(".."), ErrInvalidRecordID)
}
