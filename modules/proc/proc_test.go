package proc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/stagecraft/internal/registry"
	"github.com/vk/stagecraft/internal/table"
)

func sample(columns []string, rows ...[]any) *table.Table {
	t := table.New("t", columns)
	t.Rows = rows
	return t
}

func TestNormalizeHeaders(t *testing.T) {
	in := sample([]string{" Order ID ", "Customer-Name", "Order ID", ""})
	out, err := (&NormalizeHeaders{}).Process(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"order_id", "customer_name", "order_id_1", "col"}, out.Columns)
}

func TestAddConstants(t *testing.T) {
	in := sample([]string{"id"}, []any{1}, []any{2})
	out, err := (&AddConstants{}).Process(context.Background(), in, map[string]any{
		"columns": map[string]any{"direction": "IN", "batch": 7},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "batch", "direction"}, out.Columns)
	assert.Equal(t, []any{1, 7, "IN"}, out.Rows[0])
	assert.Len(t, in.Rows[0], 1, "input table unchanged")
}

func TestDropEmptyRows(t *testing.T) {
	in := sample([]string{"a", "b"},
		[]any{"x", "y"},
		[]any{nil, "  "},
		[]any{"", nil},
		[]any{nil, "z"},
	)

	t.Run("all columns", func(t *testing.T) {
		out, err := (&DropEmptyRows{}).Process(context.Background(), in, nil)
		require.NoError(t, err)
		assert.Len(t, out.Rows, 2)
	})

	t.Run("selected columns only", func(t *testing.T) {
		out, err := (&DropEmptyRows{}).Process(context.Background(), in, map[string]any{
			"columns": []any{"a"},
		})
		require.NoError(t, err)
		assert.Len(t, out.Rows, 1, "rows empty in column a dropped even when b has data")
	})
}

func TestRequireColumns(t *testing.T) {
	t.Run("missing column errors by default", func(t *testing.T) {
		in := sample([]string{"id"})
		_, err := (&RequireColumns{}).Process(context.Background(), in, map[string]any{
			"required": []any{"id", "amount"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "amount")
	})

	t.Run("skip_table mode soft-drops", func(t *testing.T) {
		in := sample([]string{"id"})
		_, err := (&RequireColumns{}).Process(context.Background(), in, map[string]any{
			"required": []any{"amount"},
			"mode":     "skip_table",
		})
		assert.ErrorIs(t, err, registry.ErrSkipTable)
	})

	t.Run("aliases apply before the check", func(t *testing.T) {
		in := sample([]string{"Net  Amount"}, []any{1})
		out, err := (&RequireColumns{}).Process(context.Background(), in, map[string]any{
			"aliases":  map[string]any{"net amount": "amount"},
			"required": []any{"amount"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"amount"}, out.Columns)
	})

	t.Run("case and spacing insensitive", func(t *testing.T) {
		in := sample([]string{"Order  ID"})
		_, err := (&RequireColumns{}).Process(context.Background(), in, map[string]any{
			"required": []any{"order id"},
		})
		assert.NoError(t, err)
	})
}

func TestFilter(t *testing.T) {
	in := sample([]string{"status", "amount"},
		[]any{"active", "10"},
		[]any{"closed", "100"},
		[]any{"active", "50"},
	)

	t.Run("equality map", func(t *testing.T) {
		out, err := (&Filter{}).Process(context.Background(), in, map[string]any{
			"conditions": map[string]any{"status": "active"},
		})
		require.NoError(t, err)
		assert.Len(t, out.Rows, 2)
	})

	t.Run("numeric comparison on string cells", func(t *testing.T) {
		out, err := (&Filter{}).Process(context.Background(), in, map[string]any{
			"conditions": []any{
				map[string]any{"column": "amount", "operator": ">", "value": 20},
			},
		})
		require.NoError(t, err)
		assert.Len(t, out.Rows, 2)
	})

	t.Run("or combines conditions", func(t *testing.T) {
		out, err := (&Filter{}).Process(context.Background(), in, map[string]any{
			"operator": "or",
			"conditions": []any{
				map[string]any{"column": "status", "operator": "==", "value": "closed"},
				map[string]any{"column": "amount", "operator": "<", "value": 20},
			},
		})
		require.NoError(t, err)
		assert.Len(t, out.Rows, 2)
	})

	t.Run("skip_table_if_empty", func(t *testing.T) {
		_, err := (&Filter{}).Process(context.Background(), in, map[string]any{
			"conditions":          map[string]any{"status": "archived"},
			"skip_table_if_empty": true,
		})
		assert.ErrorIs(t, err, registry.ErrSkipTable)
	})

	t.Run("unknown operator rejected", func(t *testing.T) {
		_, err := (&Filter{}).Process(context.Background(), in, map[string]any{
			"conditions": []any{
				map[string]any{"column": "status", "operator": "~", "value": "x"},
			},
		})
		require.Error(t, err)
	})

	t.Run("no conditions passes through", func(t *testing.T) {
		out, err := (&Filter{}).Process(context.Background(), in, nil)
		require.NoError(t, err)
		assert.Equal(t, in.NumRows(), out.NumRows())
	})
}
