package source

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/leapstack-labs/livetable/pkg/table"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"  // registers the "pgx" driver
	_ "github.com/marcboeker/go-duckdb" // registers the "duckdb" driver
	_ "modernc.org/sqlite"              // registers the "sqlite" driver (pure Go)
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
	DriverDuckDB   = "duckdb"
)

// Query polls a SQL query every period. The first result column holds the
// int64 row key, the remaining columns become table columns. A poll whose
// result equals the previous one is not pushed. A failed poll stops the
// source.
type Query struct {
	name   string
	driver string
	db     *sql.DB
	query  string
	period time.Duration

	last *table.Table[Key]
}

// OpenQuery opens a database with driver and dsn and returns a query source
// owning it.
func OpenQuery(name, driver, dsn, query string, period time.Duration) (*Query, error) {
	switch driver {
	case DriverSQLite, DriverPostgres, DriverDuckDB:
	case "postgres":
		driver = DriverPostgres
	default:
		return nil, fmt.Errorf("sql source %q: unsupported driver %q", name, driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql source %q: %w", name, err)
	}
	q := NewQuery(name, db, query, period)
	q.driver = driver
	return q, nil
}

// NewQuery returns a query source over an open database.
func NewQuery(name string, db *sql.DB, query string, period time.Duration) *Query {
	return &Query{name: name, db: db, query: query, period: period}
}

// Name implements Source.
func (q *Query) Name() string { return q.name }

// goose keeps its base filesystem and dialect in package state.
var gooseMu sync.Mutex

// Migrate applies the pending goose migrations found in fsys before the
// query is first polled. Only sqlite and postgres databases can be migrated.
func (q *Query) Migrate(ctx context.Context, fsys fs.FS) error {
	var dialect string
	switch q.driver {
	case DriverSQLite:
		dialect = "sqlite3"
	case DriverPostgres:
		dialect = "postgres"
	default:
		return fmt.Errorf("sql source %q: migrations are not supported for driver %q", q.name, q.driver)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()
	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("sql source %q: set dialect: %w", q.name, err)
	}
	if err := goose.UpContext(ctx, q.db, "."); err != nil {
		return fmt.Errorf("sql source %q: migrate: %w", q.name, err)
	}
	return nil
}

// Close closes the database.
func (q *Query) Close() error { return q.db.Close() }

// Initial implements Source.
func (q *Query) Initial(ctx context.Context) (*table.Table[Key], error) {
	t, err := q.Poll(ctx)
	if err != nil {
		return nil, err
	}
	q.last = t
	return t, nil
}

// Run implements Source.
func (q *Query) Run(ctx context.Context, push func(*table.Table[Key]) error) error {
	return tick(ctx, q.period, func(time.Time) (*table.Table[Key], error) {
		t, err := q.Poll(ctx)
		if err != nil {
			return nil, err
		}
		if q.last != nil && q.last.Equal(t) {
			return nil, nil
		}
		q.last = t
		return t, nil
	}, push)
}

// Poll runs the query once.
func (q *Query) Poll(ctx context.Context) (*table.Table[Key], error) {
	rows, err := q.db.QueryContext(ctx, q.query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("query %q returns no columns", q.name)
	}

	var keys []Key
	values := make([][]any, len(names)-1)
	for rows.Next() {
		dest := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		k, err := table.Coerce(table.KindInt, dest[0])
		if err != nil || k == nil {
			return nil, fmt.Errorf("row %d: key %v is not an integer", len(keys), dest[0])
		}
		keys = append(keys, k.(int64))
		for i, v := range dest[1:] {
			values[i] = append(values[i], normalize(v))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cols := make([]table.Column, len(values))
	for i, vals := range values {
		if vals == nil {
			vals = []any{}
		}
		col, err := table.NewColumn(names[i+1], inferKind(vals), vals...)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}
	return table.New(keys, cols...)
}

// normalize maps driver values to cell values.
func normalize(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
