// Package dag builds the job dependency graph and answers the two questions
// the orchestrator asks of it: which jobs in a stage are ready to run, and
// what is a valid same-stage execution order.
package dag

import (
	stdErrors "errors"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/vk/stagecraft/internal/errdefs"
	"github.com/vk/stagecraft/internal/job"
)

// Graph is the read-only dependency graph over the full job set. Only the
// external completed-set changes during execution; the graph itself never
// does.
type Graph struct {
	jobs       []*job.Job // declaration order
	byName     map[string]*job.Job
	dependents map[string][]string // direct dependents, declaration order
}

// Build constructs the graph, failing with a DependencyError if any
// depends_on entry names an unknown job. With strict set, a dependency whose
// stage comes after the depending job's stage is rejected outright: under
// stage-ordered execution such a dependency can never be satisfied and the
// job would silently stall instead.
func Build(jobs []*job.Job, stages []string, strict bool) (*Graph, error) {
	g := &Graph{
		jobs:       jobs,
		byName:     make(map[string]*job.Job, len(jobs)),
		dependents: make(map[string][]string),
	}
	for _, j := range jobs {
		g.byName[j.Name] = j
	}

	stageIndex := make(map[string]int, len(stages))
	for i, s := range stages {
		stageIndex[s] = i
	}

	for _, j := range jobs {
		for _, dep := range j.DependsOn {
			depJob, ok := g.byName[dep]
			if !ok {
				return nil, &errdefs.DependencyError{Job: j.Name, Dep: dep}
			}
			if strict && stageIndex[depJob.Stage] > stageIndex[j.Stage] {
				return nil, errdefs.Configf(
					"job %q (stage %q) depends on %q declared in later stage %q; it would never become ready",
					j.Name, j.Stage, dep, depJob.Stage)
			}
			g.dependents[dep] = append(g.dependents[dep], j.Name)
		}
	}
	return g, nil
}

// ReadyJobs returns every pending job of the given stage whose dependencies
// are all in the completed set, in declaration order. Dependencies are
// checked against the completed set alone, regardless of which stage they
// belong to.
func (g *Graph) ReadyJobs(stage string, completed map[string]struct{}) []*job.Job {
	var ready []*job.Job
	for _, j := range g.jobs {
		if j.Stage != stage || j.Status != job.StatusPending {
			continue
		}
		ok := true
		for _, dep := range j.DependsOn {
			if _, done := completed[dep]; !done {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, j)
		}
	}
	return ready
}

// TopologicalOrder returns the names of the stage's jobs in an order that
// respects every same-stage edge, raising a CycleError on circular
// dependencies. The execution loop does not need this - readiness polling
// yields a valid order by construction - but validation tooling does.
func (g *Graph) TopologicalOrder(stage string) ([]string, error) {
	index := make(map[string]int, len(g.jobs))
	inStage := make(map[string]bool)
	sub := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())

	for i, j := range g.jobs {
		index[j.Name] = i
		if j.Stage == stage {
			inStage[j.Name] = true
			if err := sub.AddVertex(j.Name); err != nil {
				return nil, errors.Wrap(err, "add vertex")
			}
		}
	}

	for _, j := range g.jobs {
		if !inStage[j.Name] {
			continue
		}
		for _, dep := range j.DependsOn {
			if !inStage[dep] {
				continue
			}
			err := sub.AddEdge(dep, j.Name)
			if stdErrors.Is(err, graph.ErrEdgeCreatesCycle) {
				return nil, &errdefs.CycleError{Stage: stage}
			}
			if err != nil && !stdErrors.Is(err, graph.ErrEdgeAlreadyExists) {
				return nil, errors.Wrapf(err, "edge %s -> %s", dep, j.Name)
			}
		}
	}

	order, err := graph.StableTopologicalSort(sub, func(a, b string) bool {
		return index[a] < index[b]
	})
	if err != nil {
		return nil, &errdefs.CycleError{Stage: stage}
	}
	return order, nil
}

// TransitiveDependents returns every job name reachable through dependency
// edges from the given job, in breadth-first order. Used by the skip policy
// to mark the whole downstream cone of a failed job.
func (g *Graph) TransitiveDependents(name string) []string {
	var out []string
	seen := map[string]bool{name: true}
	queue := append([]string(nil), g.dependents[name]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		out = append(out, next)
		queue = append(queue, g.dependents[next]...)
	}
	return out
}

// Job returns the named job, or nil.
func (g *Graph) Job(name string) *job.Job { return g.byName[name] }

// Jobs returns all jobs in declaration order.
func (g *Graph) Jobs() []*job.Job { return g.jobs }
