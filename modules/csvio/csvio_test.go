package csvio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/stagecraft/internal/table"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReaderDetectsDelimiter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "data.csv", "id;name;city\n1;ada;berlin\n2;bob;paris\n")

	r := &Reader{}
	tables, err := r.Read(context.Background(), map[string]any{"path": "data.csv", "name": "people"}, dir)
	require.NoError(t, err)
	require.Len(t, tables, 1)

	tb := tables[0]
	assert.Equal(t, "people", tb.Name)
	assert.Equal(t, []string{"id", "name", "city"}, tb.Columns)
	require.Len(t, tb.Rows, 2)
	assert.Equal(t, "berlin", tb.Rows[0][2])
}

func TestReaderExplicitDelimiterWins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "data.csv", "a|b\n1|2\n")

	r := &Reader{}
	tables, err := r.Read(context.Background(), map[string]any{
		"path": "data.csv", "delimiter": "|",
	}, dir)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, []string{"a", "b"}, tables[0].Columns)
}

func TestReaderDeduplicatesHeaders(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dup.csv", "id,name,Name,NAME\n1,a,b,c\n")

	r := &Reader{}
	tables, err := r.Read(context.Background(), map[string]any{"path": "dup.csv"}, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "Name_1", "NAME_2"}, tables[0].Columns)
}

func TestReaderMultipleFilesKeepTheirStems(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "jan.csv", "id\n1\n")
	writeFile(t, dir, "feb.csv", "id\n2\n")

	r := &Reader{}
	tables, err := r.Read(context.Background(), map[string]any{
		"path": ".", "files": "*.csv", "name": "ignored",
	}, dir)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "feb", tables[0].Name)
	assert.Equal(t, "jan", tables[1].Name)
}

func TestReaderRaggedRowsPadded(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ragged.csv", "a,b,c\n1,2\n1,2,3,4\n")

	r := &Reader{}
	tables, err := r.Read(context.Background(), map[string]any{"path": "ragged.csv"}, dir)
	require.NoError(t, err)
	tb := tables[0]
	require.Len(t, tb.Rows, 2)
	assert.Len(t, tb.Rows[0], 3)
	assert.Nil(t, tb.Rows[0][2])
	assert.Len(t, tb.Rows[1], 3, "extra fields truncated")
}

func TestReaderCanHandle(t *testing.T) {
	r := &Reader{}
	assert.True(t, r.CanHandle(map[string]any{"type": "csv"}))
	assert.True(t, r.CanHandle(map[string]any{"files": "data/*.CSV"}))
	assert.False(t, r.CanHandle(map[string]any{"type": "json"}))
}

func TestWriterRoundTrip(t *testing.T) {
	outDir := t.TempDir()
	tb := table.New("export", []string{"id", "name"})
	tb.Rows = [][]any{{1, "ada"}, {2, nil}}

	w := &Writer{}
	path, err := w.Write(context.Background(), tb, map[string]any{"dir": "exports"}, outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "exports", "export.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,ada\n2,\n", string(data))
}

func TestWriterExpandsPlaceholders(t *testing.T) {
	t.Setenv("REGION", "emea")
	outDir := t.TempDir()
	tb := table.New("t", []string{"a"})

	w := &Writer{}
	path, err := w.Write(context.Background(), tb, map[string]any{
		"name": "sales_${REGION}",
	}, outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "sales_emea.csv"), path)
}
