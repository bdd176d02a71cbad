package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/livetable/pkg/table"
	"gopkg.in/yaml.v3"
)

// File formats understood by the file source.
const (
	FormatCSV  = "csv"
	FormatYAML = "yaml"
)

// DefaultKeyColumn names the column holding row keys in a snapshot file.
const DefaultKeyColumn = "key"

const debounce = 100 * time.Millisecond

// File pushes the content of a CSV or YAML file every time it is written.
//
// A CSV file has a header row. A YAML file is a sequence of mappings, the
// column order is the key order of the first mapping. In both, the key column
// holds integer row keys; without one, rows are keyed by position.
type File struct {
	name      string
	path      string
	format    string
	keyColumn string
	logger    *slog.Logger
}

// FileOption configures a File.
type FileOption func(*File)

// WithFormat sets the file format. It defaults to the file extension.
func WithFormat(format string) FileOption {
	return func(f *File) {
		if format != "" {
			f.format = format
		}
	}
}

// WithKeyColumn sets the name of the key column.
func WithKeyColumn(name string) FileOption {
	return func(f *File) {
		if name != "" {
			f.keyColumn = name
		}
	}
}

// WithFileLogger sets the logger reporting unreadable revisions.
func WithFileLogger(logger *slog.Logger) FileOption {
	return func(f *File) { f.logger = logger }
}

// NewFile returns a file source.
func NewFile(name, path string, opts ...FileOption) (*File, error) {
	f := &File{
		name:      name,
		path:      filepath.Clean(path),
		keyColumn: DefaultKeyColumn,
		logger:    slog.New(slog.DiscardHandler),
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f.format = FormatCSV
	case ".yaml", ".yml":
		f.format = FormatYAML
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.format != FormatCSV && f.format != FormatYAML {
		return nil, fmt.Errorf("file source %q: unsupported format %q", name, f.format)
	}
	return f, nil
}

// Name implements Source.
func (f *File) Name() string { return f.name }

// Initial implements Source.
func (f *File) Initial(context.Context) (*table.Table[Key], error) {
	return f.Load()
}

// Load reads and parses the file.
func (f *File) Load() (*table.Table[Key], error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	switch f.format {
	case FormatCSV:
		return ParseCSV(bytes.NewReader(data), f.keyColumn)
	default:
		return ParseYAML(data, f.keyColumn)
	}
}

// Run implements Source. It watches the parent directory so that files
// replaced by rename are picked up too.
func (f *File) Run(ctx context.Context, push func(*table.Table[Key]) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watch %s: %w", f.path, err)
	}

	reload := make(chan struct{}, 1)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != f.path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			t, err := f.Load()
			if err != nil {
				f.logger.Warn("skipping unreadable revision", "file", f.path, "error", err)
				continue
			}
			f.logger.Debug("file changed", "file", f.path, "rows", t.Len())
			if err := push(t); err != nil {
				return err
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Error("watcher error", "error", err)
		}
	}
}

// ParseCSV reads a CSV table with a header row. Column kinds are inferred:
// int, float, bool, RFC 3339 time, then string. Empty fields are empty cells.
func ParseCSV(r io.Reader, keyColumn string) (*table.Table[Key], error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("csv: missing header row")
	}
	header, rows := records[0], records[1:]

	raw := make(map[string][]any, len(header))
	for j, name := range header {
		col := make([]any, len(rows))
		for i, rec := range rows {
			if rec[j] != "" {
				col[i] = rec[j]
			}
		}
		raw[name] = parseStrings(col)
	}
	return buildTable(header, raw, len(rows), keyColumn)
}

// ParseYAML reads a sequence of mappings.
func ParseYAML(data []byte, keyColumn string) (*table.Table[Key], error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	if doc.Kind == 0 {
		return nil, errors.New("yaml: empty document")
	}
	seq := doc.Content[0]
	if seq.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("yaml: line %d: expected a sequence of rows", seq.Line)
	}

	var names []string
	raw := map[string][]any{}
	for i, item := range seq.Content {
		if item.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("yaml: line %d: row %d is not a mapping", item.Line, i)
		}
		for j := 0; j+1 < len(item.Content); j += 2 {
			name := item.Content[j].Value
			if _, seen := raw[name]; !seen {
				names = append(names, name)
				raw[name] = make([]any, len(seq.Content))
			}
			var v any
			if err := item.Content[j+1].Decode(&v); err != nil {
				return nil, fmt.Errorf("yaml: line %d: %w", item.Content[j+1].Line, err)
			}
			raw[name][i] = v
		}
	}
	for _, name := range names {
		raw[name] = parseTimes(raw[name])
	}
	return buildTable(names, raw, len(seq.Content), keyColumn)
}

func buildTable(names []string, raw map[string][]any, n int, keyColumn string) (*table.Table[Key], error) {
	keys := make([]Key, n)
	for i := range keys {
		keys[i] = Key(i)
	}
	cols := make([]table.Column, 0, len(names))
	for _, name := range names {
		values := raw[name]
		if name == keyColumn {
			for i, v := range values {
				k, err := table.Coerce(table.KindInt, v)
				if err != nil || k == nil {
					return nil, fmt.Errorf("row %d: key %v is not an integer", i, v)
				}
				keys[i] = k.(int64)
			}
			continue
		}
		col, err := table.NewColumn(name, inferKind(values), values...)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return table.New(keys, cols...)
}

// parseStrings converts a column of raw strings to the narrowest kind all
// non-empty cells parse as.
func parseStrings(col []any) []any {
	parsers := []func(string) (any, error){
		func(s string) (any, error) { return strconv.ParseInt(s, 10, 64) },
		func(s string) (any, error) { return strconv.ParseFloat(s, 64) },
		func(s string) (any, error) { return strconv.ParseBool(s) },
		func(s string) (any, error) { return time.Parse(time.RFC3339Nano, s) },
	}
	for _, parse := range parsers {
		if out, ok := convert(col, parse); ok {
			return out
		}
	}
	return col
}

// parseTimes converts a column of strings to times when all of them are
// RFC 3339 timestamps.
func parseTimes(col []any) []any {
	for _, v := range col {
		if _, ok := v.(string); v != nil && !ok {
			return col
		}
	}
	if out, ok := convert(col, func(s string) (any, error) { return time.Parse(time.RFC3339Nano, s) }); ok {
		return out
	}
	return col
}

func convert(col []any, parse func(string) (any, error)) ([]any, bool) {
	out := make([]any, len(col))
	for i, v := range col {
		if v == nil {
			continue
		}
		p, err := parse(v.(string))
		if err != nil {
			return nil, false
		}
		out[i] = p
	}
	return out, true
}

// inferKind returns the kind shared by all non-empty values. Integers mixed
// with floats are floats, any other mix is KindAny.
func inferKind(values []any) table.Kind {
	kind, seen := table.KindAny, false
	for _, v := range values {
		if v == nil {
			continue
		}
		k := kindOf(v)
		switch {
		case !seen:
			kind, seen = k, true
		case k == kind:
		case (k == table.KindFloat && kind == table.KindInt) || (k == table.KindInt && kind == table.KindFloat):
			kind = table.KindFloat
		default:
			return table.KindAny
		}
	}
	return kind
}

func kindOf(v any) table.Kind {
	switch v.(type) {
	case int, int64, int32:
		return table.KindInt
	case float64, float32:
		return table.KindFloat
	case string:
		return table.KindString
	case bool:
		return table.KindBool
	case time.Time:
		return table.KindTime
	default:
		return table.KindAny
	}
}
