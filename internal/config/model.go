// Package config loads and models the pipeline document: variables,
// databases, execution policy, stages, jobs and runners.
package config

import (
	"sort"

	"github.com/vk/stagecraft/internal/errdefs"
)

// Runner type values. Stage names are free text; the runner type is what the
// executor dispatches on.
const (
	TypeReader      = "reader"
	TypeStager      = "stager"
	TypeTransformer = "transformer"
	TypeWriter      = "writer"
)

// Error policy values for execution.on_error.
const (
	OnErrorStop     = "stop"
	OnErrorContinue = "continue"
	OnErrorSkip     = "skip"
)

// DefaultSQLRunner is the runner name handled inline by the transform
// pipeline; any other transformer runner delegates to a registered Runner.
const DefaultSQLRunner = "sql_transform"

// Execution holds the pipeline-wide execution policy.
type Execution struct {
	OnError            string
	MaxWorkers         int
	StrictDependencies bool
}

// Reporting configures the run-report collaborator.
type Reporting struct {
	Enabled bool
	Path    string
}

// JobSpec is one declared job after variable expansion.
type JobSpec struct {
	Name      string
	Stage     string
	Runner    string
	DependsOn []string
	Config    map[string]any // full resolved job mapping (input, output, options, sql, ...)
}

// RunnerSpec is one entry of the runners registry section.
type RunnerSpec struct {
	Name   string
	Type   string         // reader | stager | transformer | writer
	Plugin string         // registry key of the backing plugin; defaults to the runner name
	Config map[string]any // full resolved runner mapping (options, ...)
}

// Model is the decoded pipeline document.
type Model struct {
	Name      string
	Version   string
	Stages    []string
	Execution Execution
	Databases map[string]map[string]any
	Jobs      []*JobSpec // declaration order
	Runners   map[string]*RunnerSpec
	Reporting Reporting
}

// StageIndex returns the position of a stage in the declared order, or -1.
func (m *Model) StageIndex(stage string) int {
	for i, s := range m.Stages {
		if s == stage {
			return i
		}
	}
	return -1
}

// Job returns the named job spec, or nil.
func (m *Model) Job(name string) *JobSpec {
	for _, j := range m.Jobs {
		if j.Name == name {
			return j
		}
	}
	return nil
}

// Decode turns the expanded raw document into a typed model. jobOrder is the
// declaration order of job names captured at load time; names missing from it
// are appended alphabetically so the result stays deterministic.
func Decode(raw map[string]any, jobOrder []string) (*Model, error) {
	meta := Map(raw, "pipeline")
	m := &Model{
		Name:      String(meta, "name"),
		Version:   String(meta, "version"),
		Stages:    StringSlice(raw, "stages"),
		Databases: map[string]map[string]any{},
		Runners:   map[string]*RunnerSpec{},
	}

	exec := Map(raw, "execution")
	m.Execution = Execution{
		OnError:            StringOr(exec, "on_error", OnErrorStop),
		MaxWorkers:         IntOr(exec, "max_workers", 1),
		StrictDependencies: Bool(exec, "strict_dependencies"),
	}
	switch m.Execution.OnError {
	case OnErrorStop, OnErrorContinue, OnErrorSkip:
	default:
		return nil, errdefs.Configf("execution.on_error: unknown policy %q", m.Execution.OnError)
	}
	if m.Execution.MaxWorkers < 1 {
		m.Execution.MaxWorkers = 1
	}

	for name, v := range Map(raw, "databases") {
		if dbCfg, ok := v.(map[string]any); ok {
			m.Databases[name] = dbCfg
		}
	}

	for name, v := range Map(raw, "runners") {
		cfg, _ := v.(map[string]any)
		m.Runners[name] = &RunnerSpec{
			Name:   name,
			Type:   String(cfg, "type"),
			Plugin: StringOr(cfg, "plugin", name),
			Config: cfg,
		}
	}

	jobsRaw := Map(raw, "jobs")
	for _, name := range orderedKeys(jobsRaw, jobOrder) {
		cfg, _ := jobsRaw[name].(map[string]any)
		spec := &JobSpec{
			Name:      name,
			Stage:     String(cfg, "stage"),
			Runner:    String(cfg, "runner"),
			DependsOn: StringSlice(cfg, "depends_on"),
			Config:    cfg,
		}
		if spec.Stage == "" {
			return nil, errdefs.Configf("job %q: missing required field: stage", name)
		}
		if m.StageIndex(spec.Stage) < 0 {
			return nil, errdefs.Configf("job %q references unknown stage %q", name, spec.Stage)
		}
		m.Jobs = append(m.Jobs, spec)
	}

	rep := Map(raw, "reporting")
	m.Reporting = Reporting{
		Enabled: Bool(rep, "enabled"),
		Path:    StringOr(rep, "path", "report.json"),
	}

	return m, nil
}

// orderedKeys returns the keys of m sorted by their position in order, with
// unknown keys appended alphabetically.
func orderedKeys(m map[string]any, order []string) []string {
	var keys []string
	seen := map[string]bool{}
	for _, k := range order {
		if _, ok := m[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
