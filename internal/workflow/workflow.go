// Package workflow parses multi-step declarative SQL workflow files: a
// metadata header plus an ordered list of named transformations, each
// carrying the SQL it executes against the warehouse.
package workflow

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Step is one named transformation inside a workflow file.
type Step struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Schema        string   `yaml:"schema"`
	SQL           string   `yaml:"sql"`
	TablesCreated []string `yaml:"tables_created"`
	Tags          []string `yaml:"tags"`
}

// Workflow is a parsed workflow file. Steps execute in file order and are
// fail-fast: the first failing step aborts the whole job.
type Workflow struct {
	Metadata map[string]any `yaml:"metadata"`
	Steps    []Step         `yaml:"transformations"`
}

// Name returns the workflow's declared name, or def when unnamed.
func (w *Workflow) Name(def string) string {
	if n, ok := w.Metadata["name"].(string); ok && n != "" {
		return n
	}
	return def
}

// Load reads and parses a workflow file.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read workflow file")
	}
	var w Workflow
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, errors.Wrapf(err, "invalid workflow YAML in %s", path)
	}
	for i := range w.Steps {
		if w.Steps[i].Name == "" {
			w.Steps[i].Name = fmt.Sprintf("transform_%d", i+1)
		}
		w.Steps[i].SQL = strings.TrimSpace(w.Steps[i].SQL)
	}
	return &w, nil
}

// IsWorkflowFile reports whether the path looks like a declarative workflow
// file rather than a plain SQL file.
func IsWorkflowFile(path string) bool {
	return strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")
}
