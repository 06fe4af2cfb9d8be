package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveAndRemove(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "/uploads/chat-media/")
	require.NoError(t, err)

	ref, err := store.Save(strings.NewReader("hello media"), "Vacation Photo.JPG", "image/jpeg")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(ref.URL, "/uploads/chat-media/"))
	require.True(t, strings.HasSuffix(ref.URL, ".jpg"))
	require.Equal(t, "image/jpeg", ref.MediaType)
	require.Equal(t, "Vacation Photo.JPG", ref.FileName)
	require.Equal(t, int64(len("hello media")), ref.FileSize)

	// stored under a fresh name, not the original
	require.NotContains(t, ref.URL, "Vacation")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	content, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.Equal(t, "hello media", string(content))

	require.NoError(t, store.Remove(ref.URL))
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSaveDistinctNames(t *testing.T) {
	store, err := NewStore(t.TempDir(), "/m")
	require.NoError(t, err)

	a, err := store.Save(strings.NewReader("a"), "same.png", "image/png")
	require.NoError(t, err)
	b, err := store.Save(strings.NewReader("b"), "same.png", "image/png")
	require.NoError(t, err)

	require.NotEqual(t, a.URL, b.URL)
}

func TestRemoveIsIdempotent(t *testing.T) {
	store, err := NewStore(t.TempDir(), "/m")
	require.NoError(t, err)

	ref, err := store.Save(strings.NewReader("x"), "f.bin", "application/octet-stream")
	require.NoError(t, err)

	require.NoError(t, store.Remove(ref.URL))
	require.NoError(t, store.Remove(ref.URL))
}

func TestRemoveRejectsBogusURL(t *testing.T) {
	store, err := NewStore(t.TempDir(), "/m")
	require.NoError(t, err)

	require.Error(t, store.Remove(""))
}

func TestCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "chat-media")
	_, err := NewStore(dir, "/m")
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
