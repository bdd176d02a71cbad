package starlark

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/livetable/pkg/live"
	"github.com/leapstack-labs/livetable/pkg/table"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"golang.org/x/sync/errgroup"
)

// entrypoint is the function a transform script must define.
const entrypoint = "transform"

// Program is a compiled row transform. The script defines
//
//	def transform(row):
//	    return ...
//
// where row is a struct with one field per column plus "key". The result is
// a dict keyed by output column, a list or tuple in output order, or a single
// value when there is one output column.
type Program struct {
	name    string
	outputs []table.Field
	fn      starlark.Callable
	pool    *ThreadPool
	logger  *slog.Logger
}

// ProgramOption configures a Program.
type ProgramOption func(*programOptions)

type programOptions struct {
	view     *ViewInfo
	params   map[string]any
	logger   *slog.Logger
	threads  int
	maxSteps uint64
}

// WithView exposes view as the "view" global.
func WithView(view *ViewInfo) ProgramOption {
	return func(o *programOptions) { o.view = view }
}

// WithParams exposes params as the "params" global.
func WithParams(params map[string]any) ProgramOption {
	return func(o *programOptions) { o.params = params }
}

// WithLogger sets the logger receiving print() output.
func WithLogger(logger *slog.Logger) ProgramOption {
	return func(o *programOptions) { o.logger = logger }
}

// WithThreads bounds the number of rows evaluated concurrently by TableFunc.
func WithThreads(n int) ProgramOption {
	return func(o *programOptions) { o.threads = n }
}

// WithMaxSteps bounds the Starlark computation steps of one row evaluation.
// Zero, the default, means no limit.
func WithMaxSteps(n uint64) ProgramOption {
	return func(o *programOptions) { o.maxSteps = n }
}

// Compile executes script and returns its transform function.
// A script that is a single expression is accepted too; it is evaluated with
// the row bound to "row".
func Compile(name, script string, outputs []table.Field, opts ...ProgramOption) (*Program, error) {
	o := programOptions{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%s: transform needs at least one output column", name)
	}

	params, err := ParamsToStarlark(o.params)
	if err != nil {
		return nil, fmt.Errorf("%s: params: %w", name, err)
	}
	globals := Predeclared(o.view, params)

	p := &Program{
		name:    name,
		outputs: outputs,
		logger:  o.logger,
	}
	p.pool = NewThreadPool(o.threads, o.maxSteps, p.print)

	fileOpts := &syntax.FileOptions{}
	src := script
	if _, err := fileOpts.ParseExpr(name, script, 0); err == nil {
		src = fmt.Sprintf("def %s(row):\n    return %s\n", entrypoint, script)
	}

	thread := p.pool.Get(name)
	defer p.pool.Put(thread)
	defined, err := starlark.ExecFileOptions(fileOpts, thread, name, src, globals)
	if err != nil {
		return nil, &EvalError{File: name, Expr: script, Message: err.Error()}
	}
	fn, ok := defined[entrypoint].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s: script must define %s(row)", name, entrypoint)
	}
	p.fn = fn
	return p, nil
}

// Outputs returns the output schema.
func (p *Program) Outputs() []table.Field { return p.outputs }

func (p *Program) print(thread *starlark.Thread, msg string) {
	p.logger.Info(msg, "transform", thread.Name)
}

// Eval runs the transform on one row and returns the output cells in
// output order.
func Eval[K comparable](p *Program, r table.Row[K]) ([]any, error) {
	row, err := RowToStarlark(r)
	if err != nil {
		return nil, err
	}

	thread := p.pool.Get(fmt.Sprintf("%s[%v]", p.name, r.Key))
	defer p.pool.Put(thread)

	res, err := starlark.Call(thread, p.fn, starlark.Tuple{row}, nil)
	if err != nil {
		return nil, &EvalError{File: p.name, Expr: fmt.Sprintf("%s(row %v)", entrypoint, r.Key), Message: err.Error()}
	}
	out, err := ToGo(res)
	if err != nil {
		return nil, err
	}
	return p.cells(out)
}

func (p *Program) cells(out any) ([]any, error) {
	switch v := out.(type) {
	case map[string]any:
		cells := make([]any, len(p.outputs))
		for i, f := range p.outputs {
			cells[i] = v[f.Name]
		}
		return cells, nil
	case []any:
		if len(v) != len(p.outputs) {
			return nil, fmt.Errorf("%s: returned %d values for %d output columns", p.name, len(v), len(p.outputs))
		}
		return v, nil
	default:
		if len(p.outputs) != 1 {
			return nil, fmt.Errorf("%s: returned a single value for %d output columns", p.name, len(p.outputs))
		}
		return []any{v}, nil
	}
}

// RowFunc adapts p to a row transform for live.Model.Apply.
func RowFunc[K comparable](p *Program) live.RowFunc[K] {
	return func(r table.Row[K]) ([]any, error) {
		return Eval(p, r)
	}
}

// TableFunc adapts p to a whole table transform for live.Model.Relate.
// Rows are evaluated concurrently, the output keeps the input row order.
func TableFunc[K comparable](p *Program) live.TableFunc[K] {
	return func(t *table.Table[K]) (*table.Table[K], error) {
		results := make([][]any, t.Len())
		var g errgroup.Group
		g.SetLimit(p.pool.Capacity())
		for i := 0; i < t.Len(); i++ {
			row := t.Row(i)
			g.Go(func() error {
				cells, err := Eval(p, row)
				if err != nil {
					return err
				}
				results[i] = cells
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		b := table.NewBuilder[K](p.outputs...)
		for i, cells := range results {
			b.Append(t.Key(i), cells...)
		}
		return b.Build()
	}
}

// EvalError represents an error during Starlark evaluation.
type EvalError struct {
	File    string
	Line    int
	Expr    string
	Message string
}

func (e *EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: error evaluating %q: %s", e.File, e.Line, e.Expr, e.Message)
	}
	return fmt.Sprintf("%s: error evaluating %q: %s", e.File, e.Expr, e.Message)
}
