package config

import "github.com/vk/stagecraft/internal/errdefs"

// Validate runs the structural checks used by the validate command: required
// sections present, every job references a known stage and runner, every
// dependency names a known job. Execution-time checks (graph build, cycle
// detection) live in the dag package.
func Validate(m *Model) error {
	if len(m.Stages) == 0 {
		return errdefs.Configf("no stages defined")
	}
	if len(m.Jobs) == 0 {
		return errdefs.Configf("no jobs defined")
	}

	names := make(map[string]bool, len(m.Jobs))
	for _, j := range m.Jobs {
		names[j.Name] = true
	}

	for _, j := range m.Jobs {
		// Runner names resolve against the plugin registry at run time, so
		// they are only checkable here when a runners section exists: then
		// an undeclared name is almost certainly a typo.
		if len(m.Runners) > 0 && j.Runner != "" && j.Runner != DefaultSQLRunner {
			if _, ok := m.Runners[j.Runner]; !ok {
				return errdefs.Configf("job %q references unknown runner %q", j.Name, j.Runner)
			}
		}
		for _, dep := range j.DependsOn {
			if !names[dep] {
				return &errdefs.DependencyError{Job: j.Name, Dep: dep}
			}
		}
	}
	return nil
}
