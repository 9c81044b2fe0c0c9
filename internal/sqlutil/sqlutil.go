// Package sqlutil holds the relational plumbing shared by the warehouse
// engines: column type inference, table materialization and result scanning
// over database/sql.
package sqlutil

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/vk/stagecraft/internal/table"
)

// Quote wraps an identifier in double quotes, escaping embedded quotes.
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// ColumnTypes infers a SQL type per column by scanning the rows. Integer
// beats double beats boolean beats text; a single incompatible value demotes
// the whole column to text. Nulls are ignored.
func ColumnTypes(t *table.Table) []string {
	types := make([]string, len(t.Columns))
	for i := range t.Columns {
		types[i] = inferColumn(t, i)
	}
	return types
}

func inferColumn(t *table.Table, col int) string {
	seen := ""
	for _, row := range t.Rows {
		if col >= len(row) || row[col] == nil {
			continue
		}
		var kind string
		switch v := row[col].(type) {
		case bool:
			kind = "BOOLEAN"
		case int, int32, int64:
			kind = "BIGINT"
		case float32, float64:
			kind = "DOUBLE"
		case time.Time:
			kind = "TIMESTAMP"
		case string:
			kind = classifyString(v)
		default:
			kind = "TEXT"
		}
		switch {
		case seen == "" || seen == kind:
			seen = kind
		case (seen == "BIGINT" && kind == "DOUBLE") || (seen == "DOUBLE" && kind == "BIGINT"):
			seen = "DOUBLE"
		default:
			return "TEXT"
		}
	}
	if seen == "" {
		return "TEXT"
	}
	return seen
}

func classifyString(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "TEXT"
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return "BIGINT"
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return "DOUBLE"
	}
	return "TEXT"
}

// CreateDDL renders the CREATE TABLE statement for a materialized table.
func CreateDDL(ref string, t *table.Table, types []string) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = Quote(c) + " " + types[i]
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", ref, strings.Join(cols, ", "))
}

// InsertRows bulk-inserts a table's rows inside one transaction. Values kept
// as strings are converted to match the inferred column types so numeric
// columns stay numeric in the warehouse.
func InsertRows(ctx context.Context, db *sql.DB, ref string, t *table.Table, types []string) error {
	if len(t.Rows) == 0 {
		return nil
	}
	placeholders := make([]string, len(t.Columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	stmt := fmt.Sprintf("INSERT INTO %s VALUES (%s)", ref, strings.Join(placeholders, ", "))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin insert transaction")
	}
	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "prepare insert")
	}
	defer prepared.Close()

	args := make([]any, len(t.Columns))
	for _, row := range t.Rows {
		for i := range args {
			if i < len(row) {
				args[i] = coerce(row[i], types[i])
			} else {
				args[i] = nil
			}
		}
		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "insert into %s", ref)
		}
	}
	return errors.Wrap(tx.Commit(), "commit insert")
}

func coerce(v any, sqlType string) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)
	switch sqlType {
	case "BIGINT":
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return n
		}
	case "DOUBLE":
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}
	case "BOOLEAN":
		if b, err := strconv.ParseBool(trimmed); err == nil {
			return b
		}
	}
	return v
}

// ScanRows materializes a query result into a table.
func ScanRows(rows *sql.Rows) (*table.Table, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "read result columns")
	}
	t := table.New("result", cols)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scan result row")
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		t.Rows = append(t.Rows, values)
	}
	return t, rows.Err()
}
