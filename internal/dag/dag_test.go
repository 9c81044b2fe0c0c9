package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/stagecraft/internal/config"
	"github.com/vk/stagecraft/internal/errdefs"
	"github.com/vk/stagecraft/internal/job"
)

func makeJob(name, stage string, deps ...string) *job.Job {
	return job.New(&config.JobSpec{
		Name:      name,
		Stage:     stage,
		DependsOn: deps,
		Config:    map[string]any{},
	}, nil)
}

var stages = []string{"extract", "stage", "transform", "load"}

func TestBuildRejectsUnknownDependency(t *testing.T) {
	jobs := []*job.Job{
		makeJob("a", "extract"),
		makeJob("b", "stage", "ghost"),
	}

	_, err := Build(jobs, stages, false)
	var depErr *errdefs.DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "b", depErr.Job)
	assert.Equal(t, "ghost", depErr.Dep)
}

func TestReadyJobs(t *testing.T) {
	a := makeJob("a", "extract")
	b := makeJob("b", "extract")
	c := makeJob("c", "stage", "a", "b")
	g, err := Build([]*job.Job{a, b, c}, stages, false)
	require.NoError(t, err)

	completed := map[string]struct{}{}

	t.Run("no deps means immediately ready, in declaration order", func(t *testing.T) {
		ready := g.ReadyJobs("extract", completed)
		require.Len(t, ready, 2)
		assert.Equal(t, "a", ready[0].Name)
		assert.Equal(t, "b", ready[1].Name)
	})

	t.Run("blocked until all deps complete", func(t *testing.T) {
		assert.Empty(t, g.ReadyJobs("stage", completed))
		completed["a"] = struct{}{}
		assert.Empty(t, g.ReadyJobs("stage", completed))
		completed["b"] = struct{}{}
		ready := g.ReadyJobs("stage", completed)
		require.Len(t, ready, 1)
		assert.Equal(t, "c", ready[0].Name)
	})

	t.Run("non-pending jobs are never ready", func(t *testing.T) {
		c.Start()
		assert.Empty(t, g.ReadyJobs("stage", completed))
	})
}

func TestReadyJobsCrossStageDependencySatisfiedByCompletedSet(t *testing.T) {
	// Dependencies count regardless of which stage they belong to.
	a := makeJob("a", "extract")
	b := makeJob("b", "transform", "a")
	g, err := Build([]*job.Job{a, b}, stages, false)
	require.NoError(t, err)

	ready := g.ReadyJobs("transform", map[string]struct{}{"a": {}})
	require.Len(t, ready, 1)
	assert.Equal(t, "b", ready[0].Name)
}

func TestLaterStageDependencyStallsWithoutError(t *testing.T) {
	// b (stage) depends on c (load): never ready under stage order, but
	// readiness polling must not raise - the job just stays pending.
	b := makeJob("b", "stage", "c")
	c := makeJob("c", "load")
	g, err := Build([]*job.Job{b, c}, stages, false)
	require.NoError(t, err)

	assert.Empty(t, g.ReadyJobs("stage", map[string]struct{}{}))
	assert.Equal(t, job.StatusPending, b.Status)
}

func TestStrictModeRejectsLaterStageDependency(t *testing.T) {
	b := makeJob("b", "stage", "c")
	c := makeJob("c", "load")

	_, err := Build([]*job.Job{b, c}, stages, true)
	var cfgErr *errdefs.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "later stage")

	// Same-stage and earlier-stage deps stay legal in strict mode.
	d := makeJob("d", "load", "c")
	_, err = Build([]*job.Job{c, d}, stages, true)
	require.NoError(t, err)
}

func TestTopologicalOrder(t *testing.T) {
	a := makeJob("a", "transform")
	b := makeJob("b", "transform", "a")
	c := makeJob("c", "transform", "a")
	d := makeJob("d", "transform", "b", "c")
	other := makeJob("x", "extract")
	g, err := Build([]*job.Job{d, c, b, a, other}, stages, false)
	require.NoError(t, err)

	order, err := g.TopologicalOrder("transform")
	require.NoError(t, err)
	require.Len(t, order, 4)

	pos := map[string]int{}
	for i, name := range order {
		pos[name] = i
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["a"], pos["c"])
	assert.Less(t, pos["b"], pos["d"])
	assert.Less(t, pos["c"], pos["d"])
}

func TestTopologicalOrderCycle(t *testing.T) {
	a := makeJob("a", "transform", "b")
	b := makeJob("b", "transform", "a")
	g, err := Build([]*job.Job{a, b}, stages, false)
	require.NoError(t, err, "build itself must not detect the cycle")

	_, err = g.TopologicalOrder("transform")
	var cycleErr *errdefs.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, "transform", cycleErr.Stage)

	// The readiness loop never raises on the same cycle: both jobs simply
	// stay pending forever.
	assert.Empty(t, g.ReadyJobs("transform", map[string]struct{}{}))
	assert.Equal(t, job.StatusPending, a.Status)
	assert.Equal(t, job.StatusPending, b.Status)
}

func TestTransitiveDependents(t *testing.T) {
	a := makeJob("a", "extract")
	b := makeJob("b", "stage", "a")
	c := makeJob("c", "transform", "b")
	d := makeJob("d", "load", "c")
	e := makeJob("e", "load")
	g, err := Build([]*job.Job{a, b, c, d, e}, stages, false)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"b", "c", "d"}, g.TransitiveDependents("a"))
	assert.Empty(t, g.TransitiveDependents("e"))
}
