// Package table defines the tabular value passed between pipeline stages and
// the per-run in-memory cache that carries it from extract to stage jobs.
package table

// Table is a logical table produced by a reader and consumed by processors,
// the staging pipeline and writers. Name is mutable identity: readers assign
// one, staging may rename it. Meta carries free-form provenance such as the
// originating file path.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
	Meta    map[string]any
}

// New returns an empty table with the given name and columns.
func New(name string, columns []string) *Table {
	return &Table{
		Name:    name,
		Columns: columns,
		Meta:    map[string]any{},
	}
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int { return len(t.Rows) }

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return len(t.Columns) }

// ColumnIndex returns the position of the named column, or -1 if absent.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// WithName returns a shallow copy of the table under a new name. Rows and
// metadata are shared with the receiver; staging only changes identity.
func (t *Table) WithName(name string) *Table {
	return &Table{
		Name:    name,
		Columns: t.Columns,
		Rows:    t.Rows,
		Meta:    t.Meta,
	}
}

// Record returns row i as a column-name keyed map.
func (t *Table) Record(i int) map[string]any {
	rec := make(map[string]any, len(t.Columns))
	for c, col := range t.Columns {
		if c < len(t.Rows[i]) {
			rec[col] = t.Rows[i][c]
		} else {
			rec[col] = nil
		}
	}
	return rec
}
