// Package report writes the machine-readable run summary. Report failures
// are the caller's to log; nothing here is load-bearing for the run itself.
package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/vk/stagecraft/internal/job"
)

// JobEntry is one job's slice of the run report.
type JobEntry struct {
	Name        string         `json:"name"`
	Stage       string         `json:"stage"`
	Status      string         `json:"status"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
	OutputTable string         `json:"output_table,omitempty"`
	Error       string         `json:"error,omitempty"`
	RowCounts   map[string]int `json:"row_counts,omitempty"`
	Metrics     map[string]any `json:"metrics,omitempty"`
}

// Report is the full document written at the end of a run.
type Report struct {
	Pipeline    string     `json:"pipeline"`
	RunID       string     `json:"run_id"`
	GeneratedAt time.Time  `json:"generated_at"`
	ElapsedMS   int64      `json:"elapsed_ms"`
	Totals      Totals     `json:"totals"`
	Jobs        []JobEntry `json:"jobs"`
}

// Totals aggregates job outcomes.
type Totals struct {
	Jobs      int `json:"jobs"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Pending   int `json:"pending"`
}

// Write renders the report for a finished run and writes it to path,
// creating parent directories as needed. It returns the path written.
func Write(path, pipeline, runID string, jobs []*job.Job, elapsed time.Duration) (string, error) {
	r := Report{
		Pipeline:    pipeline,
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		ElapsedMS:   elapsed.Milliseconds(),
		Jobs:        make([]JobEntry, 0, len(jobs)),
	}
	for _, j := range jobs {
		entry := JobEntry{
			Name:        j.Name,
			Stage:       j.Stage,
			Status:      string(j.Status),
			DurationMS:  j.Duration.Milliseconds(),
			OutputTable: j.OutputTable,
			Error:       j.Err,
		}
		if !j.StartedAt.IsZero() {
			t := j.StartedAt.UTC()
			entry.StartedAt = &t
		}
		if len(j.RowCounts) > 0 {
			entry.RowCounts = j.RowCounts
		}
		if len(j.Metrics) > 0 {
			entry.Metrics = j.Metrics
		}
		r.Jobs = append(r.Jobs, entry)

		r.Totals.Jobs++
		switch j.Status {
		case job.StatusSuccess:
			r.Totals.Succeeded++
		case job.StatusFailed:
			r.Totals.Failed++
		case job.StatusSkipped:
			r.Totals.Skipped++
		default:
			r.Totals.Pending++
		}
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal run report")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Wrap(err, "create report directory")
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(err, "write run report")
	}
	return path, nil
}
