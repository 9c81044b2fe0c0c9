// Package vars implements environment resolution for pipeline documents.
//
// Two placeholder forms are recognized inside string scalars: ${NAME} and
// {NAME}, with NAME limited to alphanumerics and underscore. Unknown names
// are left as-is; that leniency is deliberate so documents can carry literal
// braces (SQL, format strings) without escaping.
package vars

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	dollarRe = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)
	braceRe  = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)
)

// Var is one pipeline-declared variable. Declaration order matters: a
// variable may reference process environment or any variable declared before
// it, never one declared after.
type Var struct {
	Name  string
	Value any
}

// Build constructs the run environment. It seeds from the process environment
// (osEnviron as "KEY=VALUE" pairs, as returned by os.Environ) and then folds
// in the declared pipeline variables in order, expanding each against the
// snapshot accumulated so far.
func Build(declared []Var, osEnviron []string) map[string]string {
	env := make(map[string]string, len(osEnviron)+len(declared))
	for _, kv := range osEnviron {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	for _, v := range declared {
		if s, ok := v.Value.(string); ok {
			env[v.Name] = expandString(s, env)
		} else {
			env[v.Name] = fmt.Sprint(v.Value)
		}
	}
	return env
}

// Expand walks a configuration tree (maps, sequences, scalars) and replaces
// placeholders in every string scalar. Inputs are never mutated; the result
// is a fresh tree. Expanding the same tree twice against the same environment
// yields identical output.
func Expand(value any, env map[string]string) any {
	switch v := value.(type) {
	case string:
		return expandString(v, env)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			out[k] = Expand(inner, env)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = Expand(inner, env)
		}
		return out
	default:
		return value
	}
}

func expandString(s string, env map[string]string) string {
	s = replacePlaceholders(s, env, dollarRe)
	return replacePlaceholders(s, env, braceRe)
}

func replacePlaceholders(s string, env map[string]string, re *regexp.Regexp) string {
	return re.ReplaceAllStringFunc(s, func(match string) string {
		name := re.FindStringSubmatch(match)[1]
		if val, ok := env[name]; ok {
			return val
		}
		// Unknown names keep their placeholder text.
		return match
	})
}
