package starlark

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/leapstack-labs/livetable/internal/testutil"
	"github.com/leapstack-labs/livetable/pkg/live"
	"github.com/leapstack-labs/livetable/pkg/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbers() *table.Table[int64] {
	return table.MustNew([]int64{1, 2, 3},
		table.MustColumn("n", table.KindInt, -4, 0, 7),
		table.MustColumn("label", table.KindString, "a", "b", "c"),
	)
}

func evalAll(t *testing.T, p *Program, tbl *table.Table[int64]) [][]any {
	t.Helper()
	out := make([][]any, tbl.Len())
	for i := range tbl.Len() {
		cells, err := Eval(p, tbl.Row(i))
		require.NoError(t, err)
		out[i] = cells
	}
	return out
}

func TestCompile_Expression(t *testing.T) {
	p, err := Compile("double", "row.n * 2", []table.Field{{Name: "double", Kind: table.KindInt}})
	require.NoError(t, err)
	assert.Equal(t, []table.Field{{Name: "double", Kind: table.KindInt}}, p.Outputs())

	assert.Equal(t, [][]any{{int64(-8)}, {int64(0)}, {int64(14)}}, evalAll(t, p, numbers()))
}

func TestCompile_Function(t *testing.T) {
	script := `
def sign(n):
    if n < 0:
        return "neg"
    return "pos"

def transform(row):
    return {"sign": sign(row.n), "tag": row.label + str(row.key)}
`
	p, err := Compile("sign", script, []table.Field{
		{Name: "tag", Kind: table.KindString},
		{Name: "sign", Kind: table.KindString},
	})
	require.NoError(t, err)

	assert.Equal(t, [][]any{
		{"a1", "neg"},
		{"b2", "pos"},
		{"c3", "pos"},
	}, evalAll(t, p, numbers()))
}

func TestCompile_ListResult(t *testing.T) {
	p, err := Compile("pair", "(row.n, row.n > 0)", []table.Field{
		{Name: "n", Kind: table.KindInt},
		{Name: "positive", Kind: table.KindBool},
	})
	require.NoError(t, err)
	got := evalAll(t, p, numbers())
	assert.Equal(t, []any{int64(7), true}, got[2])
}

func TestCompile_Errors(t *testing.T) {
	out := []table.Field{{Name: "x", Kind: table.KindAny}}

	tests := []struct {
		name    string
		script  string
		outputs []table.Field
		msg     string
	}{
		{name: "no outputs", script: "row.n", msg: "at least one output"},
		{name: "syntax", script: "def transform(row):\n  return (", outputs: out, msg: "error evaluating"},
		{name: "missing entrypoint", script: "def other(row):\n    return 1\n", outputs: out, msg: "must define transform(row)"},
		{name: "runtime at load", script: "x = 1 // 0\n", outputs: out, msg: "division by zero"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.name, tt.script, tt.outputs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestEval_Errors(t *testing.T) {
	row := numbers().Row(0)

	p, err := Compile("missing", "row.nope", []table.Field{{Name: "x", Kind: table.KindAny}})
	require.NoError(t, err)
	_, err = Eval(p, row)
	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "missing", evalErr.File)
	assert.Contains(t, evalErr.Error(), "transform(row 1)")

	p, err = Compile("short", "[row.n]", []table.Field{{Name: "x"}, {Name: "y"}})
	require.NoError(t, err)
	_, err = Eval(p, row)
	assert.ErrorContains(t, err, "returned 1 values for 2 output columns")

	p, err = Compile("scalar", "row.n", []table.Field{{Name: "x"}, {Name: "y"}})
	require.NoError(t, err)
	_, err = Eval(p, row)
	assert.ErrorContains(t, err, "single value for 2 output columns")
}

func TestEval_MaxSteps(t *testing.T) {
	script := `
def transform(row):
    total = 0
    for i in range(row.n * 100000):
        total += i
    return total
`
	p, err := Compile("spin", script, []table.Field{{Name: "total", Kind: table.KindInt}}, WithMaxSteps(1000))
	require.NoError(t, err)
	_, err = Eval(p, numbers().Row(2))
	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Contains(t, evalErr.Message, "too many steps")
}

func TestCompile_Globals(t *testing.T) {
	script := `
def transform(row):
    return [view.name, view.source, params["offset"] + row.n, math.floor(2.7)]
`
	p, err := Compile("globals", script, []table.Field{
		{Name: "view", Kind: table.KindString},
		{Name: "source", Kind: table.KindString},
		{Name: "shifted", Kind: table.KindInt},
		{Name: "floor", Kind: table.KindAny},
	},
		WithView(&ViewInfo{Name: "shifted", Source: "numbers"}),
		WithParams(map[string]any{"offset": 100}),
	)
	require.NoError(t, err)

	cells, err := Eval(p, numbers().Row(2))
	require.NoError(t, err)
	assert.Equal(t, "shifted", cells[0])
	assert.Equal(t, "numbers", cells[1])
	assert.Equal(t, int64(107), cells[2])
	assert.EqualValues(t, 2, cells[3])
}

func TestCompile_TimeModule(t *testing.T) {
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	tbl := table.MustNew([]int64{1}, table.MustColumn("datetime", table.KindTime, at))

	p, err := Compile("parts", "{'minute': row.datetime.minute, 'second': row.datetime.second, 'next': row.datetime + time.parse_duration('1s')}",
		[]table.Field{
			{Name: "minute", Kind: table.KindInt},
			{Name: "second", Kind: table.KindInt},
			{Name: "next", Kind: table.KindTime},
		})
	require.NoError(t, err)

	cells, err := Eval(p, tbl.Row(0))
	require.NoError(t, err)
	assert.Equal(t, int64(8), cells[0])
	assert.Equal(t, int64(9), cells[1])
	assert.True(t, at.Add(time.Second).Equal(cells[2].(time.Time)))
}

func TestCompile_PrintLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	p, err := Compile("noisy", "def transform(row):\n    print('seen', row.key)\n    return row.n\n",
		[]table.Field{{Name: "n", Kind: table.KindInt}}, WithLogger(logger))
	require.NoError(t, err)
	_, err = Eval(p, numbers().Row(1))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "seen 2")
	assert.Contains(t, buf.String(), "transform=noisy[2]")
}

func TestRowFunc_Apply(t *testing.T) {
	m, err := live.New("numbers", numbers(), live.WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, err)

	p, err := Compile("abs", "row.n if row.n >= 0 else -row.n", []table.Field{{Name: "abs", Kind: table.KindInt}})
	require.NoError(t, err)

	child, err := m.Apply("abs", p.Outputs(), RowFunc[int64](p))
	require.NoError(t, err)
	col, ok := child.Snapshot().Column("abs")
	require.True(t, ok)
	assert.Equal(t, []any{int64(4), int64(0), int64(7)}, col.Values())

	next := table.MustNew([]int64{1, 2, 3},
		table.MustColumn("n", table.KindInt, -1, -2, -3),
		table.MustColumn("label", table.KindString, "a", "b", "c"),
	)
	_, err = m.Update(next)
	require.NoError(t, err)
	col, _ = child.Snapshot().Column("abs")
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, col.Values())
}

func TestTableFunc_Relate(t *testing.T) {
	m, err := live.New("numbers", numbers(), live.WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, err)

	p, err := Compile("category", "'pos' if row.n > 0 else 'neg'",
		[]table.Field{{Name: "category", Kind: table.KindString}}, WithThreads(2))
	require.NoError(t, err)

	child, err := m.Relate("category", TableFunc[int64](p), live.WithTargetColumn("filter"))
	require.NoError(t, err)

	snap := child.Snapshot()
	assert.Equal(t, []string{"n", "label", "filter"}, snap.Names())
	col, _ := snap.Column("filter")
	assert.Equal(t, []any{"neg", "neg", "pos"}, col.Values())
	assert.Equal(t, []int64{1, 2, 3}, snap.Keys())
}

func TestTableFunc_Error(t *testing.T) {
	m, err := live.New("numbers", numbers(), live.WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, err)

	p, err := Compile("inverse", "10 // row.n", []table.Field{{Name: "inverse", Kind: table.KindInt}})
	require.NoError(t, err)

	_, err = m.Relate("inverse", TableFunc[int64](p))
	var transformErr *live.TransformError
	require.True(t, errors.As(err, &transformErr))
	var evalErr *EvalError
	assert.ErrorAs(t, err, &evalErr)
}
