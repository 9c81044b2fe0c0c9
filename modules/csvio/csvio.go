// Package csvio provides the CSV reader and writer plugins.
package csvio

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/vk/stagecraft/internal/config"
	"github.com/vk/stagecraft/internal/ctxlog"
	"github.com/vk/stagecraft/internal/fsutil"
	"github.com/vk/stagecraft/internal/registry"
	"github.com/vk/stagecraft/internal/table"
)

// Module registers the reader and writer.
type Module struct{}

func (Module) Register(r *registry.Registry) {
	r.RegisterReader(&Reader{})
	r.RegisterWriter(&Writer{})
}

// Reader reads CSV files into tables, one table per file. The delimiter is
// detected by sampling unless the source pins one. Duplicate headers get a
// numeric suffix.
type Reader struct{}

func (r *Reader) Name() string { return "csv" }

func (r *Reader) CanHandle(source map[string]any) bool {
	if strings.EqualFold(config.String(source, "type"), "csv") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(config.String(source, "files")), ".csv") ||
		strings.HasSuffix(strings.ToLower(config.String(source, "path")), ".csv")
}

func (r *Reader) Read(ctx context.Context, source map[string]any, baseDir string) ([]*table.Table, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.SourceFiles(baseDir, source, "*.csv")
	if err != nil {
		return nil, err
	}

	var tables []*table.Table
	for _, path := range files {
		delim := config.String(source, "delimiter")
		if delim == "" {
			delim = detectDelimiter(path)
		}
		t, err := readFile(path, tableName(source, path, len(files)), rune(delim[0]))
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
		logger.Debug("csv file read", "file", path, "rows", t.NumRows(), "delimiter", delim)
		tables = append(tables, t)
	}
	return tables, nil
}

// tableName: a declared source name wins for a single file; with several
// files each keeps its own stem so they stay distinguishable.
func tableName(source map[string]any, path string, total int) string {
	if name := config.String(source, "name"); name != "" && total == 1 {
		return name
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func readFile(path, name string, delim rune) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.Comma = delim
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1 // tolerate ragged lines

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return table.New(name, nil), nil
	}

	headers := uniqueHeaders(records[0])
	t := table.New(name, headers)
	t.Meta["file"] = path
	for _, rec := range records[1:] {
		row := make([]any, len(headers))
		for i := range headers {
			if i < len(rec) {
				row[i] = rec[i]
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// uniqueHeaders strips BOMs, trims, and suffixes duplicates (_1, _2, ...)
// comparing case- and whitespace-insensitively.
func uniqueHeaders(raw []string) []string {
	seen := map[string]int{}
	out := make([]string, 0, len(raw))
	for _, h := range raw {
		h = strings.TrimPrefix(strings.TrimSpace(h), "\uFEFF")
		key := strings.ToLower(strings.Join(strings.Fields(h), " "))
		n := seen[key]
		seen[key] = n + 1
		if n > 0 {
			h = fmt.Sprintf("%s_%d", h, n)
		}
		out = append(out, h)
	}
	return out
}

var delimCandidates = []byte{',', ';', '\t', '|', ':'}

// detectDelimiter samples the first non-empty line and picks the candidate
// occurring most often, defaulting to a comma.
func detectDelimiter(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ","
	}
	if len(data) > 8192 {
		data = data[:8192]
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		best, bestCount := byte(','), 0
		for _, c := range delimCandidates {
			if n := strings.Count(line, string(c)); n > bestCount {
				best, bestCount = c, n
			}
		}
		return string(best)
	}
	return ","
}

// Writer writes one table to a CSV file. "dir" and "name" in the target may
// reference ${VAR}/{VAR} placeholders from the process environment.
type Writer struct{}

func (w *Writer) Name() string { return "csv" }

func (w *Writer) CanHandle(target map[string]any) bool {
	return strings.EqualFold(config.String(target, "format"), "csv") ||
		strings.HasSuffix(strings.ToLower(config.String(target, "filename")), ".csv")
}

func (w *Writer) Write(ctx context.Context, t *table.Table, target map[string]any, outDir string) (string, error) {
	path, err := fsutil.TargetPath(target, outDir, t.Name, ".csv")
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "create output file")
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if delim := config.String(target, "delimiter"); delim != "" {
		cw.Comma = rune(delim[0])
	}

	if config.BoolOr(target, "header", true) {
		if err := cw.Write(t.Columns); err != nil {
			return "", errors.Wrap(err, "write header")
		}
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) && row[i] != nil {
				record[i] = fmt.Sprint(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return "", errors.Wrap(err, "write row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", errors.Wrap(err, "flush csv")
	}
	ctxlog.FromContext(ctx).Debug("csv file written", "path", path, "rows", t.NumRows())
	return path, nil
}
