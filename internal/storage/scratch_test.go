package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestScratchStore(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewScratchStore(filepath.Join(tmpDir, "scratch"))
	require.NoError(t, err)

	t.Run("Acquire", func(t *testing.T) {
		content := []byte("fake image bytes")
		tf, err := store.Acquire(content, "photo.PNG")
		require.NoError(t, err)

		assert.Equal(t, ".png", filepath.Ext(tf.Path()))
		got, err := os.ReadFile(tf.Path())
		require.NoError(t, err)
		assert.Equal(t, content, got)

		require.NoError(t, tf.Release())
		_, err = os.Stat(tf.Path())
		assert.True(t, os.IsNotExist(err))

		require.NoError(t, tf.Release(), "second release is a no-op")
	})

	t.Run("WithRemovesOnSuccess", func(t *testing.T) {
		var seen string
		err := store.With([]byte("x"), "a.jpg", func(path string) error {
			seen = path
			_, statErr := os.Stat(path)
			return statErr
		})
		require.NoError(t, err)
		assert.NotEmpty(t, seen)
		assert.Empty(t, listDir(t, store.Dir()))
	})

	t.Run("WithRemovesOnFailure", func(t *testing.T) {
		boom := errors.New("inference exploded")
		err := store.With([]byte("x"), "a.jpg", func(string) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, listDir(t, store.Dir()))
	})

	t.Run("WithRemovesOnPanic", func(t *testing.T) {
		assert.Panics(t, func() {
			_ = store.With([]byte("x"), "a.jpg", func(string) error { panic("boom") })
		})
		assert.Empty(t, listDir(t, store.Dir()))
	})

	t.Run("ConcurrentNamesAreUnique", func(t *testing.T) {
		const n = 100
		paths := make(chan string, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tf, err := store.Acquire([]byte("x"), "same-name.jpg")
				if !assert.NoError(t, err) {
					return
				}
				paths <- tf.Path()
			}()
		}
		wg.Wait()
		close(paths)

		seen := map[string]bool{}
		for p := range paths {
			assert.False(t, seen[p])
			seen[p] = true
			_ = os.Remove(p)
		}
		assert.Len(t, seen, n)
	})
}

func TestExt(t *testing.T) {
	tests := map[string]string{
		"a.jpg":        ".jpg",
		"a.JPEG":       ".jpeg",
		"b.png":        ".png",
		"noext":        ".jpg",
		"../../etc.sh": ".jpg",
		"":             ".jpg",
	}
	for in, want := range tests {
		assert.Equal(t, want, Ext(in), in)
	}
}
