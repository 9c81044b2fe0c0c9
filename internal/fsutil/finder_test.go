package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
}

func names(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, filepath.Base(p))
	}
	return out
}

func TestSourceFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t,
		filepath.Join(dir, "data", "a.csv"),
		filepath.Join(dir, "data", "b.csv"),
		filepath.Join(dir, "data", "notes.txt"),
		filepath.Join(dir, "data", "nested", "c.csv"),
	)

	t.Run("default glob over path directory", func(t *testing.T) {
		got, err := SourceFiles(dir, map[string]any{"path": "data"}, "*.csv")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.csv", "b.csv"}, names(got))
	})

	t.Run("recursive glob reaches subdirectories", func(t *testing.T) {
		got, err := SourceFiles(dir, map[string]any{
			"path": "data", "files": "*.csv", "recursive": true,
		}, "*")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.csv", "b.csv", "c.csv"}, names(got))
	})

	t.Run("path pointing at a single file", func(t *testing.T) {
		got, err := SourceFiles(dir, map[string]any{"path": "data/a.csv"}, "*.csv")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.csv"}, names(got))
	})

	t.Run("literal filename matched case-insensitively", func(t *testing.T) {
		got, err := SourceFiles(dir, map[string]any{
			"path": "data", "files": "A.CSV",
		}, "*")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.csv"}, names(got))
	})

	t.Run("pattern list with separators", func(t *testing.T) {
		got, err := SourceFiles(dir, map[string]any{
			"path": "data", "files": "a.csv; notes.txt",
		}, "*")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.csv", "notes.txt"}, names(got))
	})

	t.Run("missing source yields empty list without error", func(t *testing.T) {
		got, err := SourceFiles(dir, map[string]any{"path": "nowhere"}, "*.csv")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
