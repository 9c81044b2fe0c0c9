package executor

import (
	"context"

	"github.com/pkg/errors"

	"github.com/vk/stagecraft/internal/config"
	"github.com/vk/stagecraft/internal/ctxlog"
	"github.com/vk/stagecraft/internal/job"
	"github.com/vk/stagecraft/internal/table"
)

// stage registers in-memory tables into the warehouse under one schema.
// Input names missing from the cache are skipped silently; an empty result
// is a trivial success.
func (e *Executor) stage(ctx context.Context, j *job.Job) error {
	logger := ctxlog.FromContext(ctx)

	schema := config.StringOr(j.Spec.Config, "schema", "staging")
	inputTables := config.StringSlice(config.Map(j.Spec.Config, "input"), "tables")
	options := config.Map(j.Spec.Config, "options")
	prefix := config.String(options, "table_prefix")
	mapping := config.Map(options, "table_mapping")
	asTable := config.BoolOr(options, "as_table", true)
	ifExists := config.StringOr(options, "if_exists", "replace")

	var toStage []*table.Table
	totalRows := 0
	for _, name := range inputTables {
		t, ok := e.cache.Get(name)
		if !ok {
			logger.Debug("input table not in cache, skipping", "table", name)
			continue
		}
		// Rename precedence: explicit mapping, then prefix, then the
		// declared input name itself.
		switch {
		case config.String(mapping, name) != "":
			t = t.WithName(config.String(mapping, name))
		case prefix != "":
			t = t.WithName(prefix + name)
		default:
			t = t.WithName(name)
		}
		toStage = append(toStage, t)
		totalRows += t.NumRows()
	}

	if len(toStage) == 0 {
		logger.Info("no tables available in memory, nothing to stage")
		j.RowCounts["tables_staged"] = 0
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.engine == nil || e.db == nil {
		logger.Warn("no warehouse configured, tables remain in memory only", "tables", len(toStage))
		j.RowCounts["tables_staged"] = 0
		return nil
	}

	if err := e.engine.CreateSchema(ctx, e.db, schema); err != nil {
		return errors.Wrapf(err, "create schema %q", schema)
	}
	replace := ifExists == "replace"
	for _, t := range toStage {
		if err := e.engine.RegisterTable(ctx, e.db, t, schema, replace, !asTable); err != nil {
			return errors.Wrapf(err, "register table %q", t.Name)
		}
		logger.Debug("table staged", "table", e.engine.TableRef(schema, t.Name), "rows", t.NumRows())
	}

	j.RowCounts["tables_staged"] = len(toStage)
	j.RowCounts["total_rows"] = totalRows
	j.Metrics["schema"] = schema
	j.Metrics["if_exists"] = ifExists
	j.Metrics["as_table"] = asTable
	logger.Info("stage complete", "schema", schema, "tables", len(toStage))
	return nil
}
