// Package orchestrator drives one pipeline run end to end: environment
// resolution, warehouse setup, graph construction, the stage-ordered
// readiness loop, the error policy, and guaranteed resource teardown.
package orchestrator

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/vk/stagecraft/internal/config"
	"github.com/vk/stagecraft/internal/ctxlog"
	"github.com/vk/stagecraft/internal/dag"
	"github.com/vk/stagecraft/internal/errdefs"
	"github.com/vk/stagecraft/internal/executor"
	"github.com/vk/stagecraft/internal/job"
	"github.com/vk/stagecraft/internal/registry"
	"github.com/vk/stagecraft/internal/report"
	"github.com/vk/stagecraft/internal/table"
)

// Options configures one run.
type Options struct {
	OutDir   string
	BaseDir  string
	Registry *registry.Registry
	Environ  []string // defaults to os.Environ()
}

// Result summarizes a finished (or aborted) run.
type Result struct {
	RunID     string
	Pipeline  string
	Jobs      []*job.Job
	Succeeded int
	Failed    int
	Skipped   int
	Pending   int
	Elapsed   time.Duration
}

// Run executes a pipeline document to completion or failure. The returned
// Result is non-nil whenever job execution began, so callers can summarize
// aborted runs too.
func Run(ctx context.Context, doc *config.Document, opts Options) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	if opts.Environ == nil {
		opts.Environ = os.Environ()
	}

	model, env, err := doc.Expand(opts.Environ)
	if err != nil {
		return nil, err
	}
	logger.Info("pipeline starting", "name", model.Name, "version", model.Version)

	if len(model.Jobs) == 0 {
		logger.Warn("no jobs defined in pipeline")
		return &Result{RunID: uuid.NewString(), Pipeline: model.Name}, nil
	}

	// Open the warehouse before building jobs so a bad database config
	// fails before anything runs.
	var (
		eng registry.Engine
		db  *sql.DB
	)
	warehouseCfg := model.Databases["warehouse"]
	if warehouseCfg != nil {
		eng, err = opts.Registry.Engine(warehouseCfg)
		if err != nil {
			return nil, err
		}
		if err := resetBackingStore(ctx, warehouseCfg); err != nil {
			return nil, err
		}
		db, err = eng.Connect(ctx, warehouseCfg)
		if err != nil {
			return nil, errors.Wrap(err, "connect warehouse")
		}
		for _, schema := range config.StringSlice(warehouseCfg, "schemas") {
			if err := eng.CreateSchema(ctx, db, schema); err != nil {
				logger.Warn("failed to create schema", "schema", schema, "error", err)
			}
		}
		logger.Info("warehouse connected", "engine", eng.Name(),
			"path", config.StringOr(warehouseCfg, "path", "in-memory"))
	}

	jobs := job.FromModel(model)
	graph, err := dag.Build(jobs, model.Stages, model.Execution.StrictDependencies)
	if err != nil {
		// Construction failure is fatal before any job runs; still close
		// what we opened.
		closeWarehouse(ctx, eng, db)
		return nil, err
	}

	exec := executor.New(executor.Options{
		Env:            env,
		Engine:         eng,
		DB:             db,
		DatabaseConfig: warehouseCfg,
		OutDir:         opts.OutDir,
		BaseDir:        opts.BaseDir,
		Cache:          table.NewCache(),
		Registry:       opts.Registry,
	})

	// The warehouse handle may be swapped by a task runner mid-run; close
	// whatever handle the executor holds at the end, exactly once.
	defer func() { closeWarehouse(ctx, eng, exec.DB()) }()

	result := &Result{RunID: uuid.NewString(), Pipeline: model.Name, Jobs: jobs}
	start := time.Now()

	runErr := runStages(ctx, model, graph, exec)

	result.Elapsed = time.Since(start)
	for _, j := range jobs {
		switch j.Status {
		case job.StatusSuccess:
			result.Succeeded++
		case job.StatusFailed:
			result.Failed++
		case job.StatusSkipped:
			result.Skipped++
		default:
			result.Pending++
		}
	}
	logger.Info("pipeline summary",
		"run_id", result.RunID,
		"jobs", len(jobs),
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"pending", result.Pending,
		"elapsed", result.Elapsed)

	if model.Reporting.Enabled {
		// Report generation failure is never fatal.
		path := filepath.Join(opts.OutDir, model.Reporting.Path)
		if written, err := report.Write(path, model.Name, result.RunID, jobs, result.Elapsed); err != nil {
			logger.Warn("failed to generate run report", "error", err)
		} else {
			logger.Info("run report generated", "path", written)
		}
	}

	return result, runErr
}

// runStages iterates declared stages in order, draining ready jobs from each
// and applying the configured error policy.
func runStages(ctx context.Context, model *config.Model, graph *dag.Graph, exec *executor.Executor) error {
	logger := ctxlog.FromContext(ctx)

	completed := map[string]struct{}{}
	var mu sync.Mutex

	for _, stage := range model.Stages {
		logger.Info("stage starting", "stage", stage)

		for {
			ready := graph.ReadyJobs(stage, completed)
			if len(ready) == 0 {
				break
			}
			if err := runBatch(ctx, model, graph, exec, ready, completed, &mu); err != nil {
				return err
			}
		}

		// Jobs still pending here can never run: either they depend on a
		// later stage or sit on a dependency cycle. Surface that instead
		// of failing.
		for _, j := range graph.Jobs() {
			if j.Stage == stage && j.Status == job.StatusPending {
				logger.Warn("job never became ready", "job", j.Name, "stage", stage, "depends_on", j.DependsOn)
			}
		}
	}
	return nil
}

// runBatch executes one ready batch. With max_workers == 1 this is the
// reference sequential behavior; otherwise the batch fans out through a
// bounded errgroup and merges completions under one lock.
func runBatch(ctx context.Context, model *config.Model, graph *dag.Graph, exec *executor.Executor,
	ready []*job.Job, completed map[string]struct{}, mu *sync.Mutex) error {

	workers := model.Execution.MaxWorkers
	if workers <= 1 {
		for _, j := range ready {
			if err := runOne(ctx, model, graph, exec, j, completed, mu); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, j := range ready {
		j := j
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil // a stop-policy failure already aborted the batch
			}
			return runOne(gctx, model, graph, exec, j, completed, mu)
		})
	}
	return g.Wait()
}

// runOne dispatches a single job and applies the error policy to its
// outcome. The completed set only ever grows, and a job name enters it
// exactly once regardless of success or failure.
func runOne(ctx context.Context, model *config.Model, graph *dag.Graph, exec *executor.Executor,
	j *job.Job, completed map[string]struct{}, mu *sync.Mutex) error {

	logger := ctxlog.FromContext(ctx)
	err := exec.Execute(ctx, j)

	mu.Lock()
	defer mu.Unlock()

	if err == nil {
		completed[j.Name] = struct{}{}
		return nil
	}

	// Configuration problems are fatal under every policy: the pipeline
	// definition is wrong, not the data.
	var cfgErr *errdefs.ConfigurationError
	if errors.As(err, &cfgErr) {
		return err
	}

	switch model.Execution.OnError {
	case config.OnErrorContinue:
		logger.Warn("job failed, continuing", "job", j.Name, "error", err)
		completed[j.Name] = struct{}{}
		return nil
	case config.OnErrorSkip:
		logger.Warn("job failed, skipping dependents", "job", j.Name, "error", err)
		completed[j.Name] = struct{}{}
		for _, name := range graph.TransitiveDependents(j.Name) {
			dep := graph.Job(name)
			if dep.Status == job.StatusPending {
				dep.MarkSkipped("dependency " + j.Name + " failed")
				logger.Warn("job skipped", "job", name, "failed_dependency", j.Name)
			}
		}
		return nil
	default: // stop
		return err
	}
}

func resetBackingStore(ctx context.Context, cfg map[string]any) error {
	if !config.Bool(cfg, "reset_on_start") {
		return nil
	}
	path := config.String(cfg, "path")
	if path == "" || path == ":memory:" {
		return nil
	}
	ctxlog.FromContext(ctx).Info("resetting warehouse backing store", "path", path)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "reset warehouse")
	}
	return nil
}

func closeWarehouse(ctx context.Context, eng registry.Engine, db *sql.DB) {
	if eng == nil || db == nil {
		return
	}
	if err := eng.Close(db); err != nil {
		ctxlog.FromContext(ctx).Warn("error closing warehouse connection", "error", err)
	}
}
