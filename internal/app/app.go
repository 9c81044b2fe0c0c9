// Package app assembles one application instance: configuration loading,
// an isolated logger, the plugin registry, and the run and validate entry
// points the CLI commands call.
package app

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/vk/stagecraft/internal/config"
	"github.com/vk/stagecraft/internal/ctxlog"
	"github.com/vk/stagecraft/internal/dag"
	"github.com/vk/stagecraft/internal/job"
	"github.com/vk/stagecraft/internal/orchestrator"
	"github.com/vk/stagecraft/internal/registry"
)

// Config holds everything an App instance needs to run.
type Config struct {
	PipelinePath string
	OutDir       string
	BaseDir      string
	EnvFile      string
	Overrides    []string // dotted key=value pairs applied after load

	LogFormat string
	LogLevel  string
}

// App encapsulates the application's dependencies and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	cfg      *Config
}

// New constructs an App with its own logger and a registry populated from
// the given modules.
func New(outW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	return &App{
		outW:     outW,
		logger:   logger,
		registry: registry.New(modules...),
		cfg:      cfg,
	}
}

// Logger exposes the app's logger for the CLI's own messages.
func (a *App) Logger() *slog.Logger { return a.logger }

// load reads the pipeline document and applies env-file and --set overrides.
func (a *App) load() (*config.Document, error) {
	if a.cfg.PipelinePath == "" {
		return nil, errors.New("no pipeline file specified")
	}
	if a.cfg.EnvFile != "" {
		if err := godotenv.Load(a.cfg.EnvFile); err != nil {
			return nil, errors.Wrapf(err, "load env file %s", a.cfg.EnvFile)
		}
		a.logger.Debug("env file loaded", "path", a.cfg.EnvFile)
	}

	doc, err := config.Load(a.cfg.PipelinePath)
	if err != nil {
		return nil, err
	}
	for _, kv := range a.cfg.Overrides {
		key, value, ok := splitOverride(kv)
		if !ok {
			return nil, errors.Errorf("invalid --set value %q, expected key=value", kv)
		}
		if err := doc.SetDotted(key, value); err != nil {
			return nil, err
		}
		a.logger.Debug("override applied", "key", key)
	}
	return doc, nil
}

func splitOverride(kv string) (key, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], i > 0
		}
	}
	return "", "", false
}

// Run executes the pipeline end to end.
func (a *App) Run(ctx context.Context) (*orchestrator.Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	doc, err := a.load()
	if err != nil {
		return nil, err
	}
	return orchestrator.Run(ctx, doc, orchestrator.Options{
		OutDir:   a.cfg.OutDir,
		BaseDir:  a.cfg.BaseDir,
		Registry: a.registry,
	})
}

// Validate runs the structural checks without executing anything: document
// parse, variable expansion, model validation, and a per-stage graph build
// including cycle detection.
func (a *App) Validate(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	doc, err := a.load()
	if err != nil {
		return err
	}
	model, _, err := doc.Expand(os.Environ())
	if err != nil {
		return err
	}
	if err := config.Validate(model); err != nil {
		return err
	}

	graph, err := dag.Build(job.FromModel(model), model.Stages, model.Execution.StrictDependencies)
	if err != nil {
		return err
	}
	for _, stage := range model.Stages {
		if _, err := graph.TopologicalOrder(stage); err != nil {
			return err
		}
	}
	a.logger.Info("pipeline is valid",
		"pipeline", model.Name, "stages", len(model.Stages), "jobs", len(model.Jobs))
	return nil
}
