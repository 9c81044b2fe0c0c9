// Package jsonio provides JSON and JSONL readers and writers.
package jsonio

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/vk/stagecraft/internal/config"
	"github.com/vk/stagecraft/internal/ctxlog"
	"github.com/vk/stagecraft/internal/fsutil"
	"github.com/vk/stagecraft/internal/registry"
	"github.com/vk/stagecraft/internal/table"
)

// Module registers both readers and both writers.
type Module struct{}

func (Module) Register(r *registry.Registry) {
	r.RegisterReader(&Reader{})
	r.RegisterReader(&LinesReader{})
	r.RegisterWriter(&Writer{})
	r.RegisterWriter(&LinesWriter{})
}

// Reader reads JSON documents. An optional "json_path" dot path selects a
// nested value; a list of objects becomes rows, anything scalar becomes a
// one-column table.
type Reader struct{}

func (r *Reader) Name() string { return "json" }

func (r *Reader) CanHandle(source map[string]any) bool {
	return strings.EqualFold(config.String(source, "type"), "json") ||
		hasExt(source, ".json")
}

func (r *Reader) Read(ctx context.Context, source map[string]any, baseDir string) ([]*table.Table, error) {
	files, err := fsutil.SourceFiles(baseDir, source, "*.json")
	if err != nil {
		return nil, err
	}

	var tables []*table.Table
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
		doc = dig(doc, config.String(source, "json_path"))

		t := fromValue(sourceName(source, path, len(files)), doc)
		t.Meta["file"] = path
		ctxlog.FromContext(ctx).Debug("json file read", "file", path, "rows", t.NumRows())
		tables = append(tables, t)
	}
	return tables, nil
}

// LinesReader reads JSONL: one JSON object per line, blank lines skipped.
type LinesReader struct{}

func (r *LinesReader) Name() string { return "jsonl" }

func (r *LinesReader) CanHandle(source map[string]any) bool {
	return strings.EqualFold(config.String(source, "type"), "jsonl") ||
		hasExt(source, ".jsonl")
}

func (r *LinesReader) Read(ctx context.Context, source map[string]any, baseDir string) ([]*table.Table, error) {
	files, err := fsutil.SourceFiles(baseDir, source, "*.jsonl")
	if err != nil {
		return nil, err
	}

	var tables []*table.Table
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", path)
		}

		var records []map[string]any
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var rec map[string]any
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				f.Close()
				return nil, errors.Wrapf(err, "parse %s line %d", path, lineNo)
			}
			records = append(records, rec)
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "scan %s", path)
		}

		t := fromRecords(sourceName(source, path, len(files)), records)
		t.Meta["file"] = path
		ctxlog.FromContext(ctx).Debug("jsonl file read", "file", path, "rows", t.NumRows())
		tables = append(tables, t)
	}
	return tables, nil
}

func hasExt(source map[string]any, ext string) bool {
	return strings.HasSuffix(strings.ToLower(config.String(source, "files")), ext) ||
		strings.HasSuffix(strings.ToLower(config.String(source, "path")), ext)
}

func sourceName(source map[string]any, path string, total int) string {
	if name := config.String(source, "name"); name != "" && total == 1 {
		return name
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func dig(doc any, dotPath string) any {
	if dotPath == "" {
		return doc
	}
	cur := doc
	for _, key := range strings.Split(dotPath, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

func fromValue(name string, doc any) *table.Table {
	switch v := doc.(type) {
	case nil:
		return table.New(name, nil)
	case []any:
		var records []map[string]any
		scalars := false
		for _, item := range v {
			if rec, ok := item.(map[string]any); ok {
				records = append(records, rec)
			} else {
				scalars = true
				break
			}
		}
		if scalars || len(v) == 0 {
			t := table.New(name, []string{"value"})
			for _, item := range v {
				t.Rows = append(t.Rows, []any{item})
			}
			return t
		}
		return fromRecords(name, records)
	case map[string]any:
		return fromRecords(name, []map[string]any{v})
	default:
		t := table.New(name, []string{"value"})
		t.Rows = append(t.Rows, []any{v})
		return t
	}
}

// fromRecords unions keys across records in first-seen order (sorted within
// each record for determinism, since JSON objects carry no order).
func fromRecords(name string, records []map[string]any) *table.Table {
	var columns []string
	index := map[string]int{}
	for _, rec := range records {
		for _, k := range sortedKeys(rec) {
			if _, ok := index[k]; !ok {
				index[k] = len(columns)
				columns = append(columns, k)
			}
		}
	}

	t := table.New(name, columns)
	for _, rec := range records {
		row := make([]any, len(columns))
		for k, v := range rec {
			row[index[k]] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Writer writes a table as a JSON document: "orient" records (default,
// array of objects) or columns (object of arrays), "indent" spaces.
type Writer struct{}

func (w *Writer) Name() string { return "json" }

func (w *Writer) CanHandle(target map[string]any) bool {
	return strings.EqualFold(config.String(target, "format"), "json") ||
		strings.HasSuffix(strings.ToLower(config.String(target, "filename")), ".json")
}

func (w *Writer) Write(ctx context.Context, t *table.Table, target map[string]any, outDir string) (string, error) {
	path, err := fsutil.TargetPath(target, outDir, t.Name, ".json")
	if err != nil {
		return "", err
	}

	var payload any
	if config.String(target, "orient") == "columns" {
		cols := make(map[string][]any, len(t.Columns))
		for i, c := range t.Columns {
			vals := make([]any, 0, len(t.Rows))
			for _, row := range t.Rows {
				if i < len(row) {
					vals = append(vals, row[i])
				} else {
					vals = append(vals, nil)
				}
			}
			cols[c] = vals
		}
		payload = cols
	} else {
		records := make([]map[string]any, 0, len(t.Rows))
		for i := range t.Rows {
			records = append(records, t.Record(i))
		}
		payload = records
	}

	var data []byte
	if indent := config.IntOr(target, "indent", 2); indent > 0 {
		data, err = json.MarshalIndent(payload, "", strings.Repeat(" ", indent))
	} else {
		data, err = json.Marshal(payload)
	}
	if err != nil {
		return "", errors.Wrap(err, "marshal json")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(err, "write json file")
	}
	ctxlog.FromContext(ctx).Debug("json file written", "path", path, "rows", t.NumRows())
	return path, nil
}

// LinesWriter writes a table as JSONL, one object per row.
type LinesWriter struct{}

func (w *LinesWriter) Name() string { return "jsonl" }

func (w *LinesWriter) CanHandle(target map[string]any) bool {
	return strings.EqualFold(config.String(target, "format"), "jsonl") ||
		strings.HasSuffix(strings.ToLower(config.String(target, "filename")), ".jsonl")
}

func (w *LinesWriter) Write(ctx context.Context, t *table.Table, target map[string]any, outDir string) (string, error) {
	path, err := fsutil.TargetPath(target, outDir, t.Name, ".jsonl")
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "create output file")
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	for i := range t.Rows {
		if err := enc.Encode(t.Record(i)); err != nil {
			return "", errors.Wrap(err, "encode record")
		}
	}
	if err := bw.Flush(); err != nil {
		return "", errors.Wrap(err, "flush jsonl")
	}
	ctxlog.FromContext(ctx).Debug("jsonl file written", "path", path, "rows", t.NumRows())
	return path, nil
}
