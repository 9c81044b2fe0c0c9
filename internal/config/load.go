package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vk/stagecraft/internal/vars"
)

// Document is a loaded, not-yet-expanded pipeline document. Raw holds the
// full tree; Vars and JobOrder preserve the declaration order that Go maps
// would otherwise lose (variables expand in order, ready jobs run in
// declaration order).
type Document struct {
	Path     string
	Raw      map[string]any
	Vars     []vars.Var
	JobOrder []string
}

// Load reads and parses a pipeline document from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read pipeline document")
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	doc.Path = path
	return doc, nil
}

// Parse parses pipeline YAML into a Document.
func Parse(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.Wrap(err, "invalid YAML")
	}

	doc := &Document{Raw: map[string]any{}}
	if len(root.Content) == 0 {
		return doc, nil
	}
	mapping := root.Content[0]
	if err := mapping.Decode(&doc.Raw); err != nil {
		return nil, errors.Wrap(err, "pipeline document must be a mapping")
	}

	// Re-walk the node tree for the two sections whose order matters.
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, val := mapping.Content[i], mapping.Content[i+1]
		switch key.Value {
		case "variables":
			for j := 0; j+1 < len(val.Content); j += 2 {
				var v any
				if err := val.Content[j+1].Decode(&v); err != nil {
					return nil, errors.Wrapf(err, "variable %q", val.Content[j].Value)
				}
				doc.Vars = append(doc.Vars, vars.Var{Name: val.Content[j].Value, Value: v})
			}
		case "jobs":
			for j := 0; j+1 < len(val.Content); j += 2 {
				doc.JobOrder = append(doc.JobOrder, val.Content[j].Value)
			}
		}
	}
	return doc, nil
}

// SetDotted applies a dotted.key=value override to the raw tree, creating
// intermediate mappings as needed. The value is parsed as a YAML scalar so
// "true", "3" and quoted strings keep their natural types.
func (d *Document) SetDotted(key, value string) error {
	if key == "" {
		return errors.New("override key must not be empty")
	}
	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}

	parts := strings.Split(key, ".")
	current := d.Raw
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = parsed
	return nil
}

// Expand resolves the environment from the declared variables and the process
// environment, expands the whole document against it, and decodes the typed
// model. The returned environment is the immutable run environment.
func (d *Document) Expand(osEnviron []string) (*Model, map[string]string, error) {
	env := vars.Build(d.Vars, osEnviron)
	expanded, _ := vars.Expand(d.Raw, env).(map[string]any)
	model, err := Decode(expanded, d.JobOrder)
	if err != nil {
		return nil, nil, err
	}
	return model, env, nil
}
