package executor

import (
	"context"

	"github.com/pkg/errors"

	"github.com/vk/stagecraft/internal/config"
	"github.com/vk/stagecraft/internal/ctxlog"
	"github.com/vk/stagecraft/internal/job"
	"github.com/vk/stagecraft/internal/registry"
	"github.com/vk/stagecraft/internal/table"
)

// extract reads tables from a source, runs each through the job's processor
// chain, and caches the first surviving table under the declared output name.
// No matching files, or every table dropped by processors, is still success:
// no-data is not a failure.
func (e *Executor) extract(ctx context.Context, j *job.Job) error {
	logger := ctxlog.FromContext(ctx)

	input := config.Map(j.Spec.Config, "input")
	source := map[string]any{
		"name": j.Name,
		"type": runnerPlugin(j),
	}
	for k, v := range runnerOptions(j) {
		source[k] = v
	}
	for k, v := range input {
		source[k] = v // job input overrides runner defaults
	}

	reader, err := e.reg.Reader(source)
	if err != nil {
		return err
	}

	tables, err := reader.Read(ctx, source, e.baseDir)
	if err != nil {
		return errors.Wrapf(err, "reader %q", reader.Name())
	}
	if len(tables) == 0 {
		logger.Info("no data extracted", "reason", "no files matched")
		j.RowCounts["total_rows"] = 0
		return nil
	}

	processors := j.Spec.Config["processors"]
	var kept []*table.Table
	totalRows := 0
	for _, t := range tables {
		processed, err := e.applyProcessors(ctx, t, processors)
		if err != nil {
			return err
		}
		if processed == nil {
			logger.Debug("table dropped by processors", "table", t.Name)
			continue
		}
		kept = append(kept, processed)
		totalRows += processed.NumRows()
	}
	if len(kept) == 0 {
		logger.Info("no data extracted", "reason", "all tables dropped by processors")
		j.RowCounts["total_rows"] = 0
		return nil
	}

	outputName := config.String(config.Map(j.Spec.Config, "output"), "table")
	if outputName != "" {
		// Single declared output: only the first surviving table is kept.
		// Known limitation - extra tables are logged and discarded.
		e.cache.Put(outputName, kept[0])
		j.OutputTable = outputName
		if len(kept) > 1 {
			logger.Warn("multiple tables extracted for single output, extras discarded",
				"output", outputName, "discarded", len(kept)-1)
		}
	}

	j.RowCounts["total_rows"] = totalRows
	j.RowCounts["tables_kept"] = len(kept)
	j.Metrics["reader"] = reader.Name()
	j.Metrics["input_path"] = config.String(input, "path")
	logger.Info("extract complete", "tables", len(kept), "rows", totalRows)
	return nil
}

// applyProcessors runs the ordered processor chain over one table. A nil
// result with nil error means the table was soft-dropped.
func (e *Executor) applyProcessors(ctx context.Context, t *table.Table, processors any) (*table.Table, error) {
	logger := ctxlog.FromContext(ctx)
	list, _ := processors.([]any)

	current := t
	for _, entry := range list {
		name, opts := normalizeProcessor(entry)
		if name == "" {
			continue
		}
		proc, err := e.reg.Processor(name)
		if err != nil {
			return nil, err
		}
		next, err := proc.Process(ctx, current, opts)
		if errors.Is(err, registry.ErrSkipTable) {
			logger.Debug("processor skipped table", "processor", name, "table", current.Name)
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "processor %q", name)
		}
		current = next
	}
	return current, nil
}

// normalizeProcessor parses one processor entry: either a bare name, or a
// mapping with a "name" key whose remaining keys (or explicit "options") are
// the processor options.
func normalizeProcessor(entry any) (string, map[string]any) {
	switch v := entry.(type) {
	case string:
		return v, nil
	case map[string]any:
		name := config.String(v, "name")
		if opts := config.Map(v, "options"); opts != nil {
			return name, opts
		}
		opts := make(map[string]any, len(v))
		for k, val := range v {
			if k != "name" {
				opts[k] = val
			}
		}
		return name, opts
	default:
		return "", nil
	}
}
