// Package proc provides the table processors applied during extraction:
// header normalization, constant columns, empty-row removal, required-column
// enforcement and row filtering.
package proc

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/vk/stagecraft/internal/config"
	"github.com/vk/stagecraft/internal/ctxlog"
	"github.com/vk/stagecraft/internal/registry"
	"github.com/vk/stagecraft/internal/table"
)

// Module registers all processors.
type Module struct{}

func (Module) Register(r *registry.Registry) {
	r.RegisterProcessor(&NormalizeHeaders{})
	r.RegisterProcessor(&AddConstants{})
	r.RegisterProcessor(&DropEmptyRows{})
	r.RegisterProcessor(&RequireColumns{})
	r.RegisterProcessor(&Filter{})
}

// NormalizeHeaders makes column names machine-friendly: lowercase, non-word
// runs collapsed to underscores, duplicates suffixed.
type NormalizeHeaders struct{}

func (p *NormalizeHeaders) Name() string { return "normalize_headers" }

var nonWordRe = regexp.MustCompile(`[^0-9a-zA-Z]+`)

func (p *NormalizeHeaders) Process(_ context.Context, t *table.Table, _ map[string]any) (*table.Table, error) {
	seen := map[string]int{}
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		n := normalizeHeader(c)
		if cnt := seen[n]; cnt > 0 {
			seen[n] = cnt + 1
			n = fmt.Sprintf("%s_%d", n, cnt)
		} else {
			seen[n] = 1
		}
		cols[i] = n
	}
	out := *t
	out.Columns = cols
	return &out, nil
}

func normalizeHeader(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonWordRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "col"
	}
	return s
}

// AddConstants appends literal columns to every row. Options: "columns"
// mapping of name to value.
type AddConstants struct{}

func (p *AddConstants) Name() string { return "add_constants" }

func (p *AddConstants) Process(_ context.Context, t *table.Table, options map[string]any) (*table.Table, error) {
	consts := config.Map(options, "columns")
	if len(consts) == 0 {
		return t, nil
	}

	out := table.New(t.Name, append([]string{}, t.Columns...))
	out.Meta = t.Meta

	names := make([]string, 0, len(consts))
	for name := range consts {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic column order
	out.Columns = append(out.Columns, names...)

	for _, row := range t.Rows {
		newRow := make([]any, 0, len(out.Columns))
		newRow = append(newRow, row...)
		for len(newRow) < len(t.Columns) {
			newRow = append(newRow, nil)
		}
		for _, name := range names {
			newRow = append(newRow, consts[name])
		}
		out.Rows = append(out.Rows, newRow)
	}
	return out, nil
}

// DropEmptyRows removes rows whose checked columns are all null or blank.
// Options: "columns" restricts the check; default is every column.
type DropEmptyRows struct{}

func (p *DropEmptyRows) Name() string { return "drop_empty_rows" }

func (p *DropEmptyRows) Process(ctx context.Context, t *table.Table, options map[string]any) (*table.Table, error) {
	checked := config.StringSlice(options, "columns")
	var indexes []int
	if len(checked) == 0 {
		for i := range t.Columns {
			indexes = append(indexes, i)
		}
	} else {
		for _, c := range checked {
			if i := t.ColumnIndex(c); i >= 0 {
				indexes = append(indexes, i)
			}
		}
	}
	if len(indexes) == 0 {
		return t, nil
	}

	out := table.New(t.Name, t.Columns)
	out.Meta = t.Meta
	for _, row := range t.Rows {
		empty := true
		for _, i := range indexes {
			if i < len(row) && !isBlank(row[i]) {
				empty = false
				break
			}
		}
		if !empty {
			out.Rows = append(out.Rows, row)
		}
	}
	if dropped := t.NumRows() - out.NumRows(); dropped > 0 {
		ctxlog.FromContext(ctx).Debug("empty rows dropped", "table", t.Name, "dropped", dropped)
	}
	return out, nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// RequireColumns enforces column presence. Options:
//   - "required": list of column names (matched case- and space-insensitively)
//   - "aliases": mapping of source name to target name, applied first
//   - "mode": "error" (default) fails the job, "skip_table" soft-drops it
type RequireColumns struct{}

func (p *RequireColumns) Name() string { return "require_columns" }

func (p *RequireColumns) Process(_ context.Context, t *table.Table, options map[string]any) (*table.Table, error) {
	out := *t
	if aliases := config.Map(options, "aliases"); len(aliases) > 0 {
		cols := append([]string{}, t.Columns...)
		for src, tgt := range aliases {
			want := normKey(src)
			for i, c := range cols {
				if normKey(c) == want {
					cols[i] = fmt.Sprint(tgt)
					break
				}
			}
		}
		out.Columns = cols
	}

	have := map[string]bool{}
	for _, c := range out.Columns {
		have[normKey(c)] = true
	}
	var missing []string
	for _, req := range config.StringSlice(options, "required") {
		if !have[normKey(req)] {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		if config.StringOr(options, "mode", "error") == "skip_table" {
			return nil, registry.ErrSkipTable
		}
		return nil, errors.Errorf("table %q missing required columns: %s",
			t.Name, strings.Join(missing, ", "))
	}
	return &out, nil
}

func normKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Filter keeps rows matching the configured conditions. Options:
//   - "conditions": mapping of column to value (equality), or a list of
//     {column, operator, value} with operators ==, !=, >, >=, <, <=
//   - "operator": "and" (default) or "or" across conditions
//   - "skip_table_if_empty": soft-drop the table when nothing matches
type Filter struct{}

func (p *Filter) Name() string { return "filter" }

type condition struct {
	col int
	op  string
	val any
}

func (p *Filter) Process(ctx context.Context, t *table.Table, options map[string]any) (*table.Table, error) {
	conds, err := buildConditions(t, options["conditions"])
	if err != nil {
		return nil, err
	}
	if len(conds) == 0 {
		return t, nil
	}
	anyOf := strings.EqualFold(config.StringOr(options, "operator", "and"), "or")

	out := table.New(t.Name, t.Columns)
	out.Meta = t.Meta
	for _, row := range t.Rows {
		if matches(row, conds, anyOf) {
			out.Rows = append(out.Rows, row)
		}
	}
	ctxlog.FromContext(ctx).Debug("rows filtered",
		"table", t.Name, "before", t.NumRows(), "after", out.NumRows())

	if out.NumRows() == 0 && config.Bool(options, "skip_table_if_empty") {
		return nil, registry.ErrSkipTable
	}
	return out, nil
}

func buildConditions(t *table.Table, raw any) ([]condition, error) {
	var conds []condition
	switch v := raw.(type) {
	case map[string]any:
		for col, val := range v {
			i := t.ColumnIndex(col)
			if i < 0 {
				continue // unknown columns never match anything, original logs and skips
			}
			conds = append(conds, condition{col: i, op: "==", val: val})
		}
	case []any:
		for _, entry := range v {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			col := config.String(m, "column")
			i := t.ColumnIndex(col)
			if i < 0 {
				continue
			}
			op := config.StringOr(m, "operator", "==")
			switch op {
			case "==", "!=", ">", ">=", "<", "<=":
			default:
				return nil, errors.Errorf("filter: unknown operator %q", op)
			}
			conds = append(conds, condition{col: i, op: op, val: m["value"]})
		}
	}
	return conds, nil
}

func matches(row []any, conds []condition, anyOf bool) bool {
	for _, c := range conds {
		var cell any
		if c.col < len(row) {
			cell = row[c.col]
		}
		ok := compare(cell, c.op, c.val)
		if anyOf && ok {
			return true
		}
		if !anyOf && !ok {
			return false
		}
	}
	return !anyOf
}

// compare evaluates cell <op> want, numerically when both sides parse as
// numbers, otherwise on their string forms.
func compare(cell any, op string, want any) bool {
	cf, cok := toFloat(cell)
	wf, wok := toFloat(want)
	if cok && wok {
		switch op {
		case "==":
			return cf == wf
		case "!=":
			return cf != wf
		case ">":
			return cf > wf
		case ">=":
			return cf >= wf
		case "<":
			return cf < wf
		case "<=":
			return cf <= wf
		}
	}
	cs, ws := asString(cell), asString(want)
	switch op {
	case "==":
		return cs == ws
	case "!=":
		return cs != ws
	case ">":
		return cs > ws
	case ">=":
		return cs >= ws
	case "<":
		return cs < ws
	case "<=":
		return cs <= ws
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
