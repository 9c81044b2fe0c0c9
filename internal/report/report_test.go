package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/stagecraft/internal/job"
)

func TestWriteRunReport(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	jobs := []*job.Job{
		{
			Name:        "pull_people",
			Stage:       "extract",
			Status:      job.StatusSuccess,
			StartedAt:   started,
			Duration:    1500 * time.Millisecond,
			OutputTable: "people",
			RowCounts:   map[string]int{"rows_extracted": 42},
		},
		{
			Name:   "build",
			Stage:  "transform",
			Status: job.StatusFailed,
			Err:    "syntax error",
		},
		{
			Name:   "export",
			Stage:  "load",
			Status: job.StatusSkipped,
			Err:    "dependency build failed",
		},
		{
			Name:   "never_ready",
			Stage:  "load",
			Status: job.StatusPending,
		},
	}

	path := filepath.Join(t.TempDir(), "reports", "run.json")
	written, err := Write(path, "nightly", "run-123", jobs, 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, path, written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var r Report
	require.NoError(t, json.Unmarshal(data, &r))
	assert.Equal(t, "nightly", r.Pipeline)
	assert.Equal(t, "run-123", r.RunID)
	assert.Equal(t, int64(3000), r.ElapsedMS)
	assert.Equal(t, Totals{Jobs: 4, Succeeded: 1, Failed: 1, Skipped: 1, Pending: 1}, r.Totals)

	require.Len(t, r.Jobs, 4)
	first := r.Jobs[0]
	assert.Equal(t, "pull_people", first.Name)
	assert.Equal(t, int64(1500), first.DurationMS)
	assert.Equal(t, map[string]int{"rows_extracted": 42}, first.RowCounts)
	require.NotNil(t, first.StartedAt)
	assert.Equal(t, started, *first.StartedAt)

	assert.Nil(t, r.Jobs[1].StartedAt, "never-started jobs carry no start time")
	assert.Equal(t, "syntax error", r.Jobs[1].Error)
}

func TestWriteReportEmptyRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	_, err := Write(path, "empty", "run-0", nil, 0)
	require.NoError(t, err)

	var r Report
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &r))
	assert.Equal(t, Totals{}, r.Totals)
	assert.Empty(t, r.Jobs)
}
