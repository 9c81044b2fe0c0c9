// Package registry holds the typed collaborator interfaces the engine
// dispatches to - readers, processors, writers, task runners and warehouse
// engines - and the string-keyed registration tables that resolve them.
//
// Plugins register explicitly at process start through the Module interface;
// there is no runtime discovery or reflection.
package registry

import (
	"context"
	"database/sql"
	"sort"

	"github.com/pkg/errors"

	"github.com/vk/stagecraft/internal/table"
)

// ErrSkipTable is the soft-drop signal a processor returns when a table
// should contribute nothing further to its job. It is not a failure.
var ErrSkipTable = errors.New("table skipped by processor")

// Reader produces zero or more tables from a source spec.
type Reader interface {
	Name() string
	CanHandle(source map[string]any) bool
	Read(ctx context.Context, source map[string]any, baseDir string) ([]*table.Table, error)
}

// Processor transforms a table. Returning ErrSkipTable drops the table
// without failing the job.
type Processor interface {
	Name() string
	Process(ctx context.Context, t *table.Table, options map[string]any) (*table.Table, error)
}

// Writer persists one table to a target spec, returning the written path.
type Writer interface {
	Name() string
	CanHandle(target map[string]any) bool
	Write(ctx context.Context, t *table.Table, target map[string]any, outDir string) (string, error)
}

// RunContext is the shared runtime handed to task runners. A runner may
// replace DB (for example after closing and reopening the warehouse around an
// external process); the executor adopts the replacement.
type RunContext struct {
	DB             *sql.DB
	Engine         Engine
	Params         map[string]string
	DatabaseConfig map[string]any
}

// Runner executes a whole transform job by name, bypassing the built-in SQL
// path.
type Runner interface {
	Name() string
	CanHandle(cfg map[string]any) bool
	Run(ctx context.Context, rc *RunContext, cfg map[string]any) error
}

// Engine abstracts the analytical warehouse: connection lifecycle, SQL
// execution, query materialization and table registration.
type Engine interface {
	Name() string
	CanHandle(cfg map[string]any) bool
	Connect(ctx context.Context, cfg map[string]any) (*sql.DB, error)
	Execute(ctx context.Context, db *sql.DB, sqlText string) error
	Query(ctx context.Context, db *sql.DB, sqlText string) (*table.Table, error)
	RegisterTable(ctx context.Context, db *sql.DB, t *table.Table, schema string, replace, asView bool) error
	CreateSchema(ctx context.Context, db *sql.DB, schema string) error
	Close(db *sql.DB) error
	// TableRef formats a schema-qualified table reference; engines without
	// schema support flatten it into a prefixed name.
	TableRef(schema, tbl string) string
}

// Module is implemented by every plugin package; Register wires its
// collaborators into the registry.
type Module interface {
	Register(r *Registry)
}

// Registry is the registration table for one engine instance.
type Registry struct {
	readers    map[string]Reader
	processors map[string]Processor
	writers    map[string]Writer
	runners    map[string]Runner
	engines    map[string]Engine
	engineKeys []string // registration order, for default selection
}

// New creates an empty registry and registers the given modules.
func New(modules ...Module) *Registry {
	r := &Registry{
		readers:    map[string]Reader{},
		processors: map[string]Processor{},
		writers:    map[string]Writer{},
		runners:    map[string]Runner{},
		engines:    map[string]Engine{},
	}
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// RegisterReader adds a reader under its own name.
func (r *Registry) RegisterReader(rd Reader) { r.readers[rd.Name()] = rd }

// RegisterProcessor adds a processor under its own name.
func (r *Registry) RegisterProcessor(p Processor) { r.processors[p.Name()] = p }

// RegisterWriter adds a writer under its own name.
func (r *Registry) RegisterWriter(w Writer) { r.writers[w.Name()] = w }

// RegisterRunner adds a task runner under its own name.
func (r *Registry) RegisterRunner(rn Runner) { r.runners[rn.Name()] = rn }

// RegisterEngine adds a warehouse engine under its own name.
func (r *Registry) RegisterEngine(e Engine) {
	if _, dup := r.engines[e.Name()]; !dup {
		r.engineKeys = append(r.engineKeys, e.Name())
	}
	r.engines[e.Name()] = e
}

// Reader resolves a reader: explicit "reader" key first, then "type", then
// the first reader whose CanHandle accepts the source.
func (r *Registry) Reader(source map[string]any) (Reader, error) {
	for _, key := range []string{"reader", "type"} {
		if name, ok := source[key].(string); ok {
			if rd, ok := r.readers[name]; ok {
				return rd, nil
			}
		}
	}
	for _, name := range sortedKeys(r.readers) {
		if r.readers[name].CanHandle(source) {
			return r.readers[name], nil
		}
	}
	return nil, errors.Errorf("no reader plugin found for source %v", source)
}

// Processor resolves a processor by name.
func (r *Registry) Processor(name string) (Processor, error) {
	p, ok := r.processors[name]
	if !ok {
		return nil, errors.Errorf("unknown processor %q", name)
	}
	return p, nil
}

// Writer resolves a writer: "writer" key, then "format", then CanHandle scan.
func (r *Registry) Writer(target map[string]any) (Writer, error) {
	for _, key := range []string{"writer", "format"} {
		if name, ok := target[key].(string); ok {
			if w, ok := r.writers[name]; ok {
				return w, nil
			}
		}
	}
	for _, name := range sortedKeys(r.writers) {
		if r.writers[name].CanHandle(target) {
			return r.writers[name], nil
		}
	}
	return nil, errors.Errorf("no writer plugin found for target %v", target)
}

// Runner resolves a task runner by name, falling back to a CanHandle scan.
func (r *Registry) Runner(name string, cfg map[string]any) (Runner, error) {
	if rn, ok := r.runners[name]; ok {
		return rn, nil
	}
	for _, key := range sortedKeys(r.runners) {
		if r.runners[key].CanHandle(cfg) {
			return r.runners[key], nil
		}
	}
	return nil, errors.Errorf("no runner plugin found for %q", name)
}

// Engine resolves a warehouse engine by the config's "type", falling back to
// the first registered engine that accepts the config.
func (r *Registry) Engine(cfg map[string]any) (Engine, error) {
	if name, ok := cfg["type"].(string); ok && name != "" {
		if e, ok := r.engines[name]; ok {
			return e, nil
		}
	}
	for _, name := range r.engineKeys {
		if r.engines[name].CanHandle(cfg) {
			return r.engines[name], nil
		}
	}
	return nil, errors.Errorf("no database engine found for config %v", cfg)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
