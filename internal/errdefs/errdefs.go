// Package errdefs defines the error taxonomy shared across the engine.
//
// Three families exist: configuration errors (always fatal, raised before or
// instead of job execution), job errors (fatal or recorded depending on the
// configured error policy), and cycle errors (raised only by the static
// topological check).
package errdefs

import "fmt"

// ConfigurationError reports an invalid or incomplete pipeline definition:
// an unresolvable job type, a missing required field, or - in strict mode -
// a dependency on a later stage.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return e.Msg }

// Configf builds a ConfigurationError from a format string.
func Configf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// DependencyError reports a depends_on entry that names a job not present in
// the job set. It is raised at graph build time, before any job runs.
type DependencyError struct {
	Job string // the depending job
	Dep string // the unknown dependency name
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("job %q depends on unknown job %q", e.Job, e.Dep)
}

// CycleError reports a dependency cycle between jobs of the same stage.
type CycleError struct {
	Stage string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected in stage %q", e.Stage)
}

// JobError wraps any error raised inside a job pipeline, carrying the job
// name for the orchestrator's policy decision and the run summary.
type JobError struct {
	Job string
	Err error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %q failed: %v", e.Job, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }
