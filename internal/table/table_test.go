package table

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableRecord(t *testing.T) {
	tbl := New("people", []string{"id", "name"})
	tbl.Rows = [][]any{
		{1, "ada"},
		{2}, // short row
	}

	assert.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, 2, tbl.NumColumns())
	assert.Equal(t, map[string]any{"id": 1, "name": "ada"}, tbl.Record(0))
	assert.Equal(t, map[string]any{"id": 2, "name": nil}, tbl.Record(1),
		"missing cells read as nil")
}

func TestTableColumnIndex(t *testing.T) {
	tbl := New("people", []string{"id", "name"})
	assert.Equal(t, 1, tbl.ColumnIndex("name"))
	assert.Equal(t, -1, tbl.ColumnIndex("missing"))
}

func TestTableWithNameSharesData(t *testing.T) {
	tbl := New("raw", []string{"id"})
	tbl.Rows = [][]any{{1}}
	tbl.Meta["source"] = "a.csv"

	renamed := tbl.WithName("staged")
	assert.Equal(t, "staged", renamed.Name)
	assert.Equal(t, "raw", tbl.Name)

	renamed.Rows[0][0] = 9
	assert.Equal(t, 9, tbl.Rows[0][0], "rows are shared, not copied")
	assert.Equal(t, "a.csv", renamed.Meta["source"])
}

func TestCachePutGet(t *testing.T) {
	c := NewCache()
	_, ok := c.Get("people")
	require.False(t, ok)

	first := New("people", []string{"id"})
	c.Put("people", first)
	second := New("people", []string{"id", "name"})
	c.Put("people", second)

	got, ok := c.Get("people")
	require.True(t, ok)
	assert.Same(t, second, got, "later puts replace earlier entries")
	assert.Equal(t, 1, c.Len())
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("t%d", i%4)
			c.Put(name, New(name, nil))
			c.Get(name)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, c.Len())
}
