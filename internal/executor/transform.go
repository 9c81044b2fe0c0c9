package executor

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/vk/stagecraft/internal/config"
	"github.com/vk/stagecraft/internal/ctxlog"
	"github.com/vk/stagecraft/internal/errdefs"
	"github.com/vk/stagecraft/internal/job"
	"github.com/vk/stagecraft/internal/registry"
	"github.com/vk/stagecraft/internal/workflow"
)

var createTableRe = regexp.MustCompile(`(?i)CREATE\s+(?:OR\s+REPLACE\s+)?(?:TEMP(?:ORARY)?\s+)?(?:TABLE|VIEW)\s+(?:IF\s+NOT\s+EXISTS\s+)?([^\s(]+)`)

// transform executes SQL against the warehouse, or delegates the whole job
// to a named task runner. SQL comes from, in priority order: a declarative
// workflow file, a plain SQL file, or inline text.
func (e *Executor) transform(ctx context.Context, j *job.Job) error {
	runnerName := j.Spec.Runner
	if runnerName != "" && runnerName != config.DefaultSQLRunner {
		return e.runTaskRunner(ctx, j)
	}

	sqlFile := config.String(j.Spec.Config, "sql_file")
	inline := config.String(j.Spec.Config, "sql")

	switch {
	case sqlFile != "" && workflow.IsWorkflowFile(sqlFile):
		return e.runWorkflow(ctx, j, sqlFile)
	case sqlFile != "":
		data, err := os.ReadFile(sqlFile)
		if err != nil {
			return errors.Wrap(err, "read SQL file")
		}
		return e.runSQL(ctx, j, string(data), sqlFile)
	case inline != "":
		return e.runSQL(ctx, j, inline, "inline")
	default:
		return errdefs.Configf("job %q has no SQL to execute", j.Name)
	}
}

// runTaskRunner delegates to a registered Runner, which receives the live
// warehouse handle and may replace it (a subprocess-based runner closes and
// reopens the connection). The executor adopts whatever handle comes back.
func (e *Executor) runTaskRunner(ctx context.Context, j *job.Job) error {
	logger := ctxlog.FromContext(ctx)

	plugin := runnerPlugin(j)
	rn, err := e.reg.Runner(plugin, j.Spec.Config)
	if err != nil {
		return err
	}

	opts := map[string]any{}
	for k, v := range runnerOptions(j) {
		opts[k] = v
	}
	for k, v := range config.Map(j.Spec.Config, "options") {
		opts[k] = v // job options override runner defaults
	}
	cfg := map[string]any{"options": opts}

	e.mu.Lock()
	defer e.mu.Unlock()
	rc := &registry.RunContext{
		DB:             e.db,
		Engine:         e.engine,
		Params:         e.env,
		DatabaseConfig: e.dbConfig,
	}
	if err := rn.Run(ctx, rc, cfg); err != nil {
		return errors.Wrapf(err, "runner %q", rn.Name())
	}
	e.db = rc.DB

	j.Metrics["runner"] = rn.Name()
	logger.Info("transform complete", "runner", rn.Name())
	return nil
}

// runWorkflow executes an ordered multi-step workflow file. Steps are
// fail-fast: the first failure aborts the job with no per-step recovery.
func (e *Executor) runWorkflow(ctx context.Context, j *job.Job, path string) error {
	logger := ctxlog.FromContext(ctx)

	w, err := workflow.Load(path)
	if err != nil {
		return err
	}
	logger.Info("executing workflow", "file", path, "steps", len(w.Steps))

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.engine == nil || e.db == nil {
		return errdefs.Configf("job %q requires a warehouse database", j.Name)
	}

	var created []string
	for i, step := range w.Steps {
		if step.SQL == "" {
			return errdefs.Configf("workflow step %q has no SQL", step.Name)
		}
		logger.Debug("workflow step", "index", i+1, "name", step.Name)
		if err := e.engine.Execute(ctx, e.db, step.SQL); err != nil {
			return errors.Wrapf(err, "workflow step %q", step.Name)
		}
		created = append(created, step.TablesCreated...)
	}

	j.Metrics["sql_source"] = path
	j.Metrics["workflow"] = w.Name(j.Name)
	j.Metrics["steps"] = len(w.Steps)
	if len(created) > 0 {
		j.OutputTable = strings.Join(created, ", ")
	}
	logger.Info("transform complete", "steps", len(w.Steps))
	return nil
}

// runSQL executes one SQL text against the warehouse. Created-table names
// are pattern-extracted for reporting only; extraction failure never affects
// the job outcome.
func (e *Executor) runSQL(ctx context.Context, j *job.Job, sqlText, source string) error {
	logger := ctxlog.FromContext(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.engine == nil || e.db == nil {
		return errdefs.Configf("job %q requires a warehouse database", j.Name)
	}
	if err := e.engine.Execute(ctx, e.db, sqlText); err != nil {
		return err
	}

	if m := createTableRe.FindStringSubmatch(sqlText); m != nil {
		j.OutputTable = m[1]
	}
	j.Metrics["sql_source"] = source
	j.Metrics["sql_lines"] = len(strings.Split(sqlText, "\n"))
	logger.Info("transform complete", "source", source, "table", j.OutputTable)
	return nil
}
