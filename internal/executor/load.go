package executor

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/vk/stagecraft/internal/config"
	"github.com/vk/stagecraft/internal/ctxlog"
	"github.com/vk/stagecraft/internal/errdefs"
	"github.com/vk/stagecraft/internal/job"
)

// load materializes rows from the warehouse - an explicit query or a full
// table scan - and hands the result to a writer resolved by format name.
func (e *Executor) load(ctx context.Context, j *job.Job) error {
	logger := ctxlog.FromContext(ctx)

	input := config.Map(j.Spec.Config, "input")
	output := config.Map(j.Spec.Config, "output")
	query := config.String(input, "query")
	tableName := config.String(input, "table")

	var sqlText string
	switch {
	case query != "":
		sqlText = query
	case tableName != "":
		sqlText = fmt.Sprintf("SELECT * FROM %s", tableName)
	default:
		return errdefs.Configf("job %q has no table or query specified", j.Name)
	}

	e.mu.Lock()
	if e.engine == nil || e.db == nil {
		e.mu.Unlock()
		return errdefs.Configf("job %q requires a warehouse database", j.Name)
	}
	result, err := e.engine.Query(ctx, e.db, sqlText)
	e.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "load query")
	}
	result.Name = j.Name

	target := map[string]any{"writer": runnerPlugin(j)}
	for k, v := range output {
		target[k] = v
	}
	writer, err := e.reg.Writer(target)
	if err != nil {
		return err
	}

	path, err := writer.Write(ctx, result, target, e.outDir)
	if err != nil {
		return errors.Wrapf(err, "writer %q", writer.Name())
	}

	j.RowCounts["rows_exported"] = result.NumRows()
	j.RowCounts["columns_exported"] = result.NumColumns()
	j.Metrics["writer"] = writer.Name()
	j.Metrics["output_path"] = path
	if fi, err := os.Stat(path); err == nil {
		j.Metrics["file_size_bytes"] = fi.Size()
	}
	logger.Info("load complete", "path", path, "rows", result.NumRows())
	return nil
}
