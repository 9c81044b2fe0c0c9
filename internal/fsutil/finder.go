// Package fsutil resolves source specs to concrete file lists for the
// reader plugins, and target specs to output paths for the writers.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/vk/stagecraft/internal/config"
	"github.com/vk/stagecraft/internal/vars"
)

// SourceFiles resolves a source spec to an ordered file list:
//   - "path": base directory, or a single file when "files" is absent
//   - "files": glob pattern(s) or literal filenames; a string, or a list;
//     a string may hold several patterns separated by ';' or ','
//   - "recursive": with glob patterns, search subdirectories too
//
// A literal filename that does not exist is matched case-insensitively
// inside the base directory before being given up on. Missing sources yield
// an empty list, never an error: no data is the caller's decision to make.
func SourceFiles(baseDir string, source map[string]any, defaultGlob string) ([]string, error) {
	base := config.StringOr(source, "path", ".")
	if !filepath.IsAbs(base) {
		base = filepath.Join(baseDir, base)
	}
	recursive := config.Bool(source, "recursive")
	patterns := splitPatterns(source["files"])

	if len(patterns) == 0 {
		if fi, err := os.Stat(base); err == nil && !fi.IsDir() {
			return []string{base}, nil
		}
		return globDir(base, defaultGlob, recursive)
	}

	var files []string
	for _, pat := range patterns {
		switch {
		case filepath.IsAbs(pat):
			if fi, err := os.Stat(pat); err == nil && !fi.IsDir() {
				files = append(files, pat)
			}
		case !hasGlobMeta(pat):
			if match := findLiteral(base, pat); match != "" {
				files = append(files, match)
			}
		default:
			matched, err := globDir(base, pat, recursive)
			if err != nil {
				return nil, err
			}
			files = append(files, matched...)
		}
	}
	return files, nil
}

func splitPatterns(v any) []string {
	var raw []string
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		for _, item := range t {
			raw = append(raw, fmt.Sprint(item))
		}
	case string:
		s := strings.NewReplacer("\r\n", ";", "\r", ";", "\n", ";", ",", ";").Replace(t)
		raw = strings.Split(s, ";")
	default:
		raw = []string{fmt.Sprint(t)}
	}

	var out []string
	for _, p := range raw {
		if p = cleanName(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cleanName(s string) string {
	s = strings.ReplaceAll(s, "\uFEFF", "")
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return s
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[]")
}

// findLiteral joins a literal filename to the base directory, falling back
// to a case-insensitive scan when the exact name is absent.
func findLiteral(base, name string) string {
	cand := filepath.Join(base, name)
	if fi, err := os.Stat(cand); err == nil && !fi.IsDir() {
		return cand
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return ""
	}
	want := strings.ToLower(cleanName(name))
	for _, e := range entries {
		if !e.IsDir() && strings.ToLower(cleanName(e.Name())) == want {
			return filepath.Join(base, e.Name())
		}
	}
	return ""
}

// globDir matches a pattern under base, optionally walking subdirectories.
// Results are sorted so job behavior stays deterministic.
func globDir(base, pattern string, recursive bool) ([]string, error) {
	var files []string
	if recursive {
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return filepath.SkipAll
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			if ok, _ := filepath.Match(pattern, d.Name()); ok {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(files)
		return files, nil
	}

	matched, err := filepath.Glob(filepath.Join(base, pattern))
	if err != nil {
		return nil, err
	}
	for _, m := range matched {
		if fi, err := os.Stat(m); err == nil && !fi.IsDir() {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

// TargetPath resolves the output path for a writer target: outDir, then an
// optional "dir" subdirectory, then "name" (default: the table name) plus
// the extension. Placeholders in dir and name expand from the process
// environment, extended by the target's own "env" mapping. Parent
// directories are created.
func TargetPath(target map[string]any, outDir, defaultName, ext string) (string, error) {
	env := vars.Build(nil, os.Environ())
	for k, v := range config.Map(target, "env") {
		env[k] = fmt.Sprint(v)
	}

	dir := outDir
	if sub, ok := vars.Expand(config.String(target, "dir"), env).(string); ok && sub != "" {
		dir = filepath.Join(outDir, sub)
	}
	name := config.StringOr(target, "name", config.String(target, "filename"))
	if name == "" {
		name = defaultName
	}
	if expanded, ok := vars.Expand(name, env).(string); ok {
		name = expanded
	}
	if filepath.Ext(name) == "" {
		name += ext
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create output directory")
	}
	return filepath.Join(dir, name), nil
}
