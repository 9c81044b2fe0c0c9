// Package executor implements the four job-type pipelines - extract, stage,
// transform and load - against the shared run context: resolved environment,
// warehouse connection, output directory and the in-memory table cache.
package executor

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/vk/stagecraft/internal/config"
	"github.com/vk/stagecraft/internal/ctxlog"
	"github.com/vk/stagecraft/internal/errdefs"
	"github.com/vk/stagecraft/internal/job"
	"github.com/vk/stagecraft/internal/registry"
	"github.com/vk/stagecraft/internal/table"
)

// Executor owns the shared runtime for one pipeline run. A single mutex
// serializes warehouse access and connection-handle swaps when the
// orchestrator fans a ready batch out over multiple workers; the table cache
// carries its own lock.
type Executor struct {
	mu       sync.Mutex
	env      map[string]string
	engine   registry.Engine
	db       *sql.DB
	dbConfig map[string]any
	outDir   string
	baseDir  string
	cache    *table.Cache
	reg      *registry.Registry
}

// Options configures a new Executor.
type Options struct {
	Env            map[string]string
	Engine         registry.Engine
	DB             *sql.DB
	DatabaseConfig map[string]any
	OutDir         string
	BaseDir        string // readers resolve relative source paths against this
	Cache          *table.Cache
	Registry       *registry.Registry
}

// New creates an executor for one run.
func New(opts Options) *Executor {
	if opts.Cache == nil {
		opts.Cache = table.NewCache()
	}
	if opts.BaseDir == "" {
		opts.BaseDir = "."
	}
	return &Executor{
		env:      opts.Env,
		engine:   opts.Engine,
		db:       opts.DB,
		dbConfig: opts.DatabaseConfig,
		outDir:   opts.OutDir,
		baseDir:  opts.BaseDir,
		cache:    opts.Cache,
		reg:      opts.Registry,
	}
}

// Cache exposes the in-memory table cache.
func (e *Executor) Cache() *table.Cache { return e.cache }

// DB returns the current warehouse handle. Runners may have replaced it
// since the run started.
func (e *Executor) DB() *sql.DB {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.db
}

// Execute runs one job through the pipeline selected by its runner type,
// driving the pending -> running -> success|failed state machine. Errors are
// recorded on the job and always propagated; whether they are fatal is the
// orchestrator's decision.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	logger := ctxlog.FromContext(ctx).With("job", j.Name, "stage", j.Stage)
	ctx = ctxlog.WithLogger(ctx, logger)

	jobType, err := e.jobType(j)
	if err != nil {
		j.Fail(err)
		return err
	}

	j.Start()
	logger.Info("job started", "type", jobType)

	switch jobType {
	case config.TypeReader:
		err = e.extract(ctx, j)
	case config.TypeStager:
		err = e.stage(ctx, j)
	case config.TypeTransformer:
		err = e.transform(ctx, j)
	case config.TypeWriter:
		err = e.load(ctx, j)
	}
	if err != nil {
		j.Fail(err)
		logger.Error("job failed", "error", err)
		return &errdefs.JobError{Job: j.Name, Err: err}
	}

	j.Succeed()
	logger.Info("job finished", "duration", j.Duration)
	return nil
}

// jobType resolves the pipeline for a job: the runner's declared type is
// authoritative; without one, substrings of the free-text stage name decide.
func (e *Executor) jobType(j *job.Job) (string, error) {
	if j.Runner != nil && j.Runner.Type != "" {
		switch j.Runner.Type {
		case config.TypeReader, config.TypeStager, config.TypeTransformer, config.TypeWriter:
			return j.Runner.Type, nil
		default:
			return "", errdefs.Configf("job %q: runner %q has unknown type %q", j.Name, j.Spec.Runner, j.Runner.Type)
		}
	}

	stage := strings.ToLower(j.Stage)
	switch {
	case strings.Contains(stage, "extract"):
		return config.TypeReader, nil
	case strings.Contains(stage, "stag"):
		return config.TypeStager, nil
	case strings.Contains(stage, "transform"):
		return config.TypeTransformer, nil
	case strings.Contains(stage, "load"), strings.Contains(stage, "export"):
		return config.TypeWriter, nil
	}
	return "", errdefs.Configf("cannot determine job type for stage %q: runner %q has no type field", j.Stage, j.Spec.Runner)
}

// runnerPlugin returns the registry key of the plugin backing a job's runner.
func runnerPlugin(j *job.Job) string {
	if j.Runner != nil {
		return j.Runner.Plugin
	}
	return j.Spec.Runner
}

// runnerOptions returns the options block of the job's runner config.
func runnerOptions(j *job.Job) map[string]any {
	if j.Runner == nil {
		return nil
	}
	return config.Map(j.Runner.Config, "options")
}
