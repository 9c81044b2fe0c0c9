// Package job models one declared unit of pipeline work and its status
// state machine.
package job

import (
	"fmt"
	"time"

	"github.com/vk/stagecraft/internal/config"
)

// Status is the execution state of a job. The only transitions are
// pending -> running -> success | failed; Skipped is reachable only under the
// "skip" error policy, applied to dependents of a failed job before they ever
// start.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Job is a mutable record for one declared unit of work. It is created once
// per run, mutated only by the executor during its own execution, and kept
// until run end for the summary and report.
type Job struct {
	Name      string
	Stage     string
	Spec      *config.JobSpec
	Runner    *config.RunnerSpec // nil when the job names no known runner
	DependsOn []string

	Status      Status
	StartedAt   time.Time
	Duration    time.Duration
	OutputTable string
	Err         string

	// Reporting-only telemetry; never consulted for control flow.
	Metrics   map[string]any
	RowCounts map[string]int
}

// New builds a pending job from its spec and resolved runner config.
func New(spec *config.JobSpec, runner *config.RunnerSpec) *Job {
	return &Job{
		Name:      spec.Name,
		Stage:     spec.Stage,
		Spec:      spec,
		Runner:    runner,
		DependsOn: spec.DependsOn,
		Status:    StatusPending,
		Metrics:   map[string]any{},
		RowCounts: map[string]int{},
	}
}

// Start moves the job to running and records the start time.
func (j *Job) Start() {
	j.Status = StatusRunning
	j.StartedAt = time.Now()
}

// Succeed moves the job to success and closes its timing window.
func (j *Job) Succeed() {
	j.Status = StatusSuccess
	j.Duration = time.Since(j.StartedAt)
}

// Fail moves the job to failed, capturing the error message and timing.
func (j *Job) Fail(err error) {
	j.Status = StatusFailed
	j.Err = err.Error()
	if !j.StartedAt.IsZero() {
		j.Duration = time.Since(j.StartedAt)
	}
}

// MarkSkipped marks a never-started job as skipped because a dependency
// failed under the skip policy.
func (j *Job) MarkSkipped(reason string) {
	j.Status = StatusSkipped
	j.Err = reason
}

func (j *Job) String() string {
	return fmt.Sprintf("Job(name=%s, stage=%s, status=%s)", j.Name, j.Stage, j.Status)
}

// FromModel materializes the full job set from a decoded pipeline model,
// preserving declaration order.
func FromModel(m *config.Model) []*Job {
	jobs := make([]*Job, 0, len(m.Jobs))
	for _, spec := range m.Jobs {
		jobs = append(jobs, New(spec, m.Runners[spec.Runner]))
	}
	return jobs
}
